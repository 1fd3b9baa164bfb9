package moderation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DedupKey identifies a message within its group.
type DedupKey struct {
	GroupID   int64
	MessageID int64
}

// DedupCache is a bounded recency cache of already-processed message
// identifiers. A hit refreshes recency, so both lookups and inserts
// count as use for eviction purposes.
type DedupCache struct {
	mu    sync.Mutex
	cache *lru.Cache[DedupKey, struct{}]
}

func NewDedupCache(capacity int) (*DedupCache, error) {
	cache, err := lru.New[DedupKey, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &DedupCache{cache: cache}, nil
}

// SeenOrRecord reports whether key was already recorded and records it
// if not. Check and record happen under one lock so a duplicate cannot
// race through between the two steps.
func (c *DedupCache) SeenOrRecord(key DedupKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache.Get(key); ok {
		return true
	}
	c.cache.Add(key, struct{}{})
	return false
}

func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
