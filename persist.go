package querykit

import (
	"context"
	"strconv"
	"time"
)

// expirySuffix names the sibling record holding a key's absolute expiry
// timestamp (unix milliseconds, decimal). Written only when the fetch config
// carries a TTL.
const expirySuffix = "_expiry"

// persistedRecord is the serialized form of a cache entry.
type persistedRecord struct {
	Data     any   `json:"data" msgpack:"data" cbor:"data"`
	StoredAt int64 `json:"storedAt" msgpack:"storedAt" cbor:"storedAt"`
}

// persistEntry write-throughs a fresh cache fill to the configured store.
// Persistence is best effort: store failures are logged, never surfaced.
func (e *Engine) persistEntry(ctx context.Context, key RequestKey, data any, storedAt time.Time, ttl time.Duration) {
	if e.persist == nil {
		return
	}

	raw, err := e.codec.Encode(persistedRecord{Data: data, StoredAt: storedAt.UnixMilli()})
	if err != nil {
		if e.debugLog("cache") {
			e.logger.Warn("Persist encode failed", "key", key.String(), "error", err.Error())
		}
		return
	}
	if err := e.persist.Set(ctx, key.String(), raw, ttl); err != nil {
		if e.debugLog("cache") {
			e.logger.Warn("Persist write failed", "key", key.String(), "error", err.Error())
		}
		return
	}
	if ttl > 0 {
		expiry := strconv.FormatInt(storedAt.Add(ttl).UnixMilli(), 10)
		if err := e.persist.Set(ctx, key.String()+expirySuffix, []byte(expiry), ttl); err != nil && e.debugLog("cache") {
			e.logger.Warn("Persist expiry write failed", "key", key.String(), "error", err.Error())
		}
	}
}

// loadPersisted resolves a memory-cache miss against the store. A record
// past its recorded expiry is deleted and treated as a miss, so persisted
// data can never resurrect beyond its TTL.
func (e *Engine) loadPersisted(ctx context.Context, key RequestKey) (*CacheEntry, bool) {
	if e.persist == nil {
		return nil, false
	}

	ks := key.String()
	if raw, ok, err := e.persist.Get(ctx, ks+expirySuffix); err == nil && ok {
		expiry, perr := strconv.ParseInt(string(raw), 10, 64)
		if perr == nil && time.Now().UnixMilli() >= expiry {
			_ = e.persist.Delete(ctx, ks)
			_ = e.persist.Delete(ctx, ks+expirySuffix)
			if e.metrics != nil {
				e.metrics.RecordPersistedLoad("expired")
			}
			return nil, false
		}
	}

	raw, ok, err := e.persist.Get(ctx, ks)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordPersistedLoad("error")
		}
		if e.debugLog("cache") {
			e.logger.Warn("Persist read failed", "key", ks, "error", err.Error())
		}
		return nil, false
	}
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordPersistedLoad("miss")
		}
		return nil, false
	}

	var rec persistedRecord
	if err := e.codec.Decode(raw, &rec); err != nil {
		if e.metrics != nil {
			e.metrics.RecordPersistedLoad("error")
		}
		if e.debugLog("cache") {
			e.logger.Warn("Persist decode failed", "key", ks, "error", err.Error())
		}
		return nil, false
	}

	if e.metrics != nil {
		e.metrics.RecordPersistedLoad("hit")
	}
	return &CacheEntry{Data: rec.Data, StoredAt: time.UnixMilli(rec.StoredAt)}, true
}
