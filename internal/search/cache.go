package search

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hyperjump/ofn/internal/puzzle"
)

// CachedSignature is a decoded candidate: its owning image and full vector.
type CachedSignature struct {
	ImageID int64
	Vector  puzzle.Vector
}

// SignatureCache is an LRU cache of decoded signatures keyed by signature ID.
// Committed signatures never change, so entries never go stale.
type SignatureCache struct {
	lru *lru.Cache[int64, CachedSignature]
}

// NewSignatureCache creates a cache holding up to capacity signatures.
// A capacity <= 0 disables caching.
func NewSignatureCache(capacity int) *SignatureCache {
	if capacity <= 0 {
		return &SignatureCache{}
	}
	c, err := lru.New[int64, CachedSignature](capacity)
	if err != nil {
		return &SignatureCache{}
	}
	return &SignatureCache{lru: c}
}

// Get returns the cached signature for id if present.
func (c *SignatureCache) Get(id int64) (CachedSignature, bool) {
	if c.lru == nil {
		return CachedSignature{}, false
	}
	return c.lru.Get(id)
}

// Set stores the decoded signature for id, evicting the least recently used entry if at capacity.
func (c *SignatureCache) Set(id, imageID int64, v puzzle.Vector) {
	if c.lru == nil {
		return
	}
	c.lru.Add(id, CachedSignature{ImageID: imageID, Vector: v})
}

// Len returns the number of cached signatures.
func (c *SignatureCache) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
