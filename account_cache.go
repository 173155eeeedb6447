package cmt

import lru "github.com/hashicorp/golang-lru"

// AccountCache caches decoded account snapshots by link. It is also used to
// avoid re-storing snapshots, so switch or drop the cache when the Persist
// behind a Store changes.
type AccountCache interface {
	// Add adds a freshly-persisted snapshot to the cache.
	Add(key, value interface{})
	// Contains indicates the snapshot with the given link has already been persisted.
	Contains(key interface{}) bool
	// Get retrieves the decoded account with the given link, if cached.
	Get(key interface{}) (value interface{}, ok bool)
}

// NewAccountCache creates a new ARC-based cache of the given size. One cache
// can be shared by any number of stores using the same Persist.
func NewAccountCache(size int) AccountCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return cache
}
