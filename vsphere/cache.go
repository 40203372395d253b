package vsphere

import "github.com/smnsjas/go-vsphere/vim25"

// Cache maps (type, name) pairs to managed object references. It is a
// pure performance optimization: the server stays the source of truth,
// and a stale entry is corrected by clearing the cache and retrying.
type Cache interface {
	Lookup(objType, name string) (vim25.ManagedObjectReference, bool)
	Store(objType, name string, ref vim25.ManagedObjectReference)
	Clear()
}

type cacheKey struct {
	objType string
	name    string
}

// MapCache is the default in-memory cache.
type MapCache struct {
	entries map[cacheKey]vim25.ManagedObjectReference
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{entries: map[cacheKey]vim25.ManagedObjectReference{}}
}

func (c *MapCache) Lookup(objType, name string) (vim25.ManagedObjectReference, bool) {
	ref, ok := c.entries[cacheKey{objType, name}]
	return ref, ok
}

func (c *MapCache) Store(objType, name string, ref vim25.ManagedObjectReference) {
	c.entries[cacheKey{objType, name}] = ref
}

func (c *MapCache) Clear() {
	c.entries = map[cacheKey]vim25.ManagedObjectReference{}
}

// NopCache never stores anything; every lookup misses. Used when caching
// is disabled and as a test substitute.
type NopCache struct{}

func (NopCache) Lookup(string, string) (vim25.ManagedObjectReference, bool) {
	return vim25.ManagedObjectReference{}, false
}

func (NopCache) Store(string, string, vim25.ManagedObjectReference) {}

func (NopCache) Clear() {}
