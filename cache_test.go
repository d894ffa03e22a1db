package querykit

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	now := time.Now()

	if _, _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Set(key, "v1", now)
	entry, stale, ok := c.Get(key)
	if !ok || stale {
		t.Fatalf("expected fresh hit, ok=%v stale=%v", ok, stale)
	}
	if entry.Data != "v1" {
		t.Errorf("unexpected data %v", entry.Data)
	}
	if !entry.StoredAt.Equal(now) {
		t.Errorf("StoredAt not preserved: %v vs %v", entry.StoredAt, now)
	}
}

func TestCacheReplaceWholesale(t *testing.T) {
	c := NewCache(4)
	key := NewRequestKey("users/1", nil)

	c.Set(key, "v1", time.Now())
	first, _, _ := c.Get(key)
	c.Set(key, "v2", time.Now())
	second, _, _ := c.Get(key)

	if first == second {
		t.Error("Set must replace the entry, not mutate it in place")
	}
	if first.Data != "v1" || second.Data != "v2" {
		t.Errorf("entries corrupted: %v / %v", first.Data, second.Data)
	}
}

func TestCacheEntryFresh(t *testing.T) {
	now := time.Now()
	entry := &CacheEntry{Data: "x", StoredAt: now.Add(-2 * time.Second)}

	if !entry.Fresh(0, now) {
		t.Error("zero TTL means never expires")
	}
	if !entry.Fresh(5*time.Second, now) {
		t.Error("entry younger than TTL should be fresh")
	}
	if entry.Fresh(time.Second, now) {
		t.Error("entry older than TTL should not be fresh")
	}
}

func TestCacheInvalidateByPrefixMarksNotDeletes(t *testing.T) {
	c := NewCache(16)
	now := time.Now()
	u1 := NewRequestKey("users/1", nil)
	u2 := NewRequestKey("users/2", map[string]any{"page": 2})
	p1 := NewRequestKey("posts/1", nil)
	c.Set(u1, "a", now)
	c.Set(u2, "b", now)
	c.Set(p1, "c", now)

	n := c.InvalidateByPrefix("users")
	if n != 2 {
		t.Fatalf("expected 2 marked entries, got %d", n)
	}

	for _, key := range []RequestKey{u1, u2} {
		entry, stale, ok := c.Get(key)
		if !ok {
			t.Fatalf("entry %s must not be evicted", key.String())
		}
		if !stale {
			t.Errorf("entry %s must be stale", key.String())
		}
		if entry.Data == nil {
			t.Errorf("entry %s lost its data", key.String())
		}
	}

	if _, stale, ok := c.Get(p1); !ok || stale {
		t.Error("unrelated endpoint must be untouched")
	}
}

func TestCacheInvalidateAdvancesGeneration(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	c.Set(key, "v1", time.Now())

	g1 := c.Generation(key)
	c.InvalidateByPrefix("users")
	g2 := c.Generation(key)
	if g2 == g1 {
		t.Error("invalidation must advance the generation")
	}
}

func TestCacheMarkStaleKeepsGeneration(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	c.Set(key, "v1", time.Now())

	g1 := c.Generation(key)
	c.MarkStale(key)
	if c.Generation(key) != g1 {
		t.Error("MarkStale must not advance the generation")
	}
	if _, stale, _ := c.Get(key); !stale {
		t.Error("MarkStale must flag the entry")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	c.Set(key, "v1", time.Now())
	g1 := c.Generation(key)

	c.Clear()

	if _, _, ok := c.Get(key); ok {
		t.Error("Clear must evict entries")
	}
	if c.Generation(key) == g1 {
		t.Error("Clear must advance generations of evicted keys")
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, len=%d", c.Len())
	}
}

func TestCacheSetIfGeneration(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	now := time.Now()
	c.Set(key, "v1", now)

	gen := c.Generation(key)
	c.InvalidateByPrefix("users")

	// A write carrying the pre-invalidation generation must lose: the
	// staleness mark survives and the data is untouched.
	if c.SetIfGeneration(key, "late", time.Now(), gen) {
		t.Fatal("write with an outdated generation must be refused")
	}
	entry, stale, ok := c.Get(key)
	if !ok || !stale {
		t.Fatalf("invalidation undone: ok=%v stale=%v", ok, stale)
	}
	if entry.Data != "v1" {
		t.Errorf("outdated write replaced the entry: %v", entry.Data)
	}

	// A write carrying the current generation applies and clears the mark.
	if !c.SetIfGeneration(key, "v2", time.Now(), c.Generation(key)) {
		t.Fatal("write with the current generation must apply")
	}
	entry, stale, _ = c.Get(key)
	if stale || entry.Data != "v2" {
		t.Errorf("current-generation write not applied: stale=%v data=%v", stale, entry.Data)
	}
}

func TestCacheInvalidateEndpointContainingSeparator(t *testing.T) {
	c := NewCache(16)
	now := time.Now()
	odd := NewRequestKey("reports?format=raw", map[string]any{"page": 1})
	plain := NewRequestKey("reports", map[string]any{"format": "raw"})
	c.Set(odd, "a", now)
	c.Set(plain, "b", now)

	// Prefix matching works off the endpoint the entry was stored with,
	// even when the endpoint itself contains '?'.
	if n := c.InvalidateByPrefix("reports?format"); n != 1 {
		t.Fatalf("expected 1 marked entry, got %d", n)
	}
	if _, stale, _ := c.Get(odd); !stale {
		t.Error("separator-bearing endpoint must be matched by its own prefix")
	}
	if _, stale, _ := c.Get(plain); stale {
		t.Error("a params segment must never satisfy an endpoint prefix")
	}
}

func TestCacheSetClearsStaleMark(t *testing.T) {
	c := NewCache(16)
	key := NewRequestKey("users/1", nil)
	c.Set(key, "v1", time.Now())
	c.MarkStale(key)

	c.Set(key, "v2", time.Now())
	if _, stale, _ := c.Get(key); stale {
		t.Error("a fresh Set must clear the stale mark")
	}
}
