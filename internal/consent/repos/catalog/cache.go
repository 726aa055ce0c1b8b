package catalog

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheStats reports lookup cache counters.
type CacheStats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// lookup is a cached resolution outcome. Misses are cached too.
type lookup[M any] struct {
	match M
	ok    bool
}

// resultCache is an LRU of lookup outcomes keyed by host or cookie name.
// A nil lru means caching is disabled.
type resultCache[M any] struct {
	capacity  int
	lru       *lru.Cache[string, lookup[M]]
	hits      uint64
	misses    uint64
	evictions uint64
}

func newResultCache[M any](size int) (*resultCache[M], error) {
	rc := &resultCache[M]{capacity: max(size, 0)}
	if size <= 0 {
		return rc, nil
	}
	cache, err := lru.NewWithEvict(size, func(string, lookup[M]) {
		atomic.AddUint64(&rc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	rc.lru = cache
	return rc, nil
}

func (c *resultCache[M]) get(key string) (lookup[M], bool) {
	if c.lru == nil {
		return lookup[M]{}, false
	}
	if v, ok := c.lru.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return v, true
	}
	atomic.AddUint64(&c.misses, 1)
	return lookup[M]{}, false
}

func (c *resultCache[M]) put(key string, v lookup[M]) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, v)
}

func (c *resultCache[M]) stats() CacheStats {
	st := CacheStats{
		Capacity:  c.capacity,
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
	if c.lru != nil {
		st.Size = c.lru.Len()
	}
	return st
}
