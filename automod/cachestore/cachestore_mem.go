package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process implementation. Capacity and TTL are fixed at construction;
// create one instance per concern (invite memo, redirect memo, event dedupe)
// instead of sharing a process-wide cache, so one noisy concern cannot evict
// another's entries.
type MemCacheStore struct {
	entries *expirable.LRU[string, string]
}

func NewMemCacheStore(capacity int, ttl time.Duration) MemCacheStore {
	return MemCacheStore{
		entries: expirable.NewLRU[string, string](capacity, nil, ttl),
	}
}

// cacheKey namespaces keys so one store instance can hold several named
// concerns without collisions.
func cacheKey(name, key string) string {
	return name + "/" + key
}

func (s MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	v, ok := s.entries.Get(cacheKey(name, key))
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.entries.Add(cacheKey(name, key), val)
	return nil
}

func (s MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.entries.Remove(cacheKey(name, key))
	return nil
}
