package querykit

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// CacheEntry is an immutable snapshot of a prior result. Entries are replaced
// wholesale on Set, never mutated in place.
type CacheEntry struct {
	Data     any
	StoredAt time.Time
}

// Fresh reports TTL validity: true when ttl is unset or the entry is younger
// than ttl.
func (e *CacheEntry) Fresh(ttl time.Duration, now time.Time) bool {
	return ttl == 0 || now.Sub(e.StoredAt) < ttl
}

type cacheItem struct {
	entry *CacheEntry
	stale bool
	// endpoint is kept alongside the entry so prefix invalidation never has
	// to parse the storage key, which may itself contain '?'.
	endpoint string
}

type cacheShard struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
	// gens survive Clear so outstanding fetches from before the clear can
	// be detected and discarded.
	gens map[string]uint64
}

// Cache is a sharded key/value store of prior results. Staleness marks
// entries without evicting them; eviction only happens on Clear.
type Cache struct {
	shards    []*cacheShard
	numShards int
}

// NewCache returns a cache with the given shard count (minimum 1).
func NewCache(numShards int) *Cache {
	if numShards < 1 {
		numShards = 1
	}
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			items: make(map[string]*cacheItem),
			gens:  make(map[string]uint64),
		}
	}
	return &Cache{shards: shards, numShards: numShards}
}

func (c *Cache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key along with its staleness mark. Expired or
// stale entries are still returned; the caller decides what freshness means.
func (c *Cache) Get(key RequestKey) (entry *CacheEntry, stale bool, ok bool) {
	shard := c.getShard(key.String())
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	item, exists := shard.items[key.String()]
	if !exists {
		return nil, false, false
	}
	return item.entry, item.stale, true
}

// Set stores a new entry for key, clearing any staleness mark. now becomes
// the entry's StoredAt so persisted entries can be re-seeded with their
// original timestamp.
func (c *Cache) Set(key RequestKey, data any, now time.Time) {
	ks := key.String()
	shard := c.getShard(ks)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.items[ks] = &cacheItem{
		entry:    &CacheEntry{Data: data, StoredAt: now},
		endpoint: key.Endpoint,
	}
}

// SetIfGeneration stores a new entry for key only when the key's generation
// counter still equals gen, performing the compare and the write under one
// shard lock. An invalidation or clear that bumped the counter after the
// caller sampled gen makes this a no-op, so a fetch that raced it cannot
// overwrite the staleness mark it set. Reports whether the write happened.
func (c *Cache) SetIfGeneration(key RequestKey, data any, now time.Time, gen uint64) bool {
	ks := key.String()
	shard := c.getShard(ks)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if shard.gens[ks] != gen {
		return false
	}
	shard.items[ks] = &cacheItem{
		entry:    &CacheEntry{Data: data, StoredAt: now},
		endpoint: key.Endpoint,
	}
	return true
}

// MarkStale flags the entry for key without advancing its generation: results
// from calls already in flight still apply.
func (c *Cache) MarkStale(key RequestKey) {
	ks := key.String()
	shard := c.getShard(ks)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if item, ok := shard.items[ks]; ok {
		item.stale = true
	}
}

// InvalidateByPrefix marks every entry whose endpoint segment starts with
// prefix as stale and advances its generation, so in-flight fetches for those
// keys are discarded on completion. Returns the number of entries marked.
func (c *Cache) InvalidateByPrefix(prefix string) int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for ks, item := range shard.items {
			if !strings.HasPrefix(item.endpoint, prefix) {
				continue
			}
			item.stale = true
			shard.gens[ks]++
			n++
		}
		shard.mu.Unlock()
	}
	return n
}

// Clear evicts every entry and advances the generation of each evicted key.
func (c *Cache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		for ks := range shard.items {
			shard.gens[ks]++
		}
		shard.items = make(map[string]*cacheItem)
		shard.mu.Unlock()
	}
}

// Generation returns the current generation counter for key (0 if the key
// was never invalidated or cleared).
func (c *Cache) Generation(key RequestKey) uint64 {
	ks := key.String()
	shard := c.getShard(ks)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return shard.gens[ks]
}

// Len returns the number of live entries across all shards.
func (c *Cache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}
