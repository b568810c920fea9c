package pack

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/mega-forge/mega-core/internal/digest"
)

// cacheEntry is what Cache stores per decoded object.
type cacheEntry struct {
	typ  EntryType
	body []byte
}

// Cache is a size-bounded LRU of recently decoded objects, evicted by
// heap-bytes rather than item count, used to accelerate chained delta
// resolution during pack decode (spec §4.D).
//
// Grounded on the teacher's in-memory decode cache in
// modules/zeta/backend/decode.go (store/fromCache), reimplemented on
// top of dgraph-io/ristretto/v2 — which the teacher itself depends on
// — for its cost-weighted admission and eviction policy.
type Cache struct {
	c *ristretto.Cache[digest.Hash, cacheEntry]
}

// NewCache builds a cache with a ceiling of maxBytes of object
// payload (pack.decode.window_bytes, spec §6.6).
func NewCache(maxBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[digest.Hash, cacheEntry]{
		NumCounters: maxBytes / 100,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

func (c *Cache) Put(h digest.Hash, t EntryType, body []byte) {
	c.c.Set(h, cacheEntry{typ: t, body: body}, int64(len(body)))
}

func (c *Cache) Get(h digest.Hash) (EntryType, []byte, bool) {
	e, ok := c.c.Get(h)
	if !ok {
		return 0, nil, false
	}
	return e.typ, e.body, true
}

func (c *Cache) Close() {
	c.c.Close()
}
