// Package cachestore provides explicit TTL cache service instances with
// injected capacity, replacing implicit module-level caches.
package cachestore

import (
	"context"
	"encoding/json"
)

// CacheStore is a generic TTL string cache, used for memoizing network
// lookups (invite resolution, redirect chains) and short-lived dedupe state.
// An empty string return means "not cached".
type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}

// GetJSON reads a memoized value stored with SetJSON. ok is false on a cache
// miss, a read error, or an undecodable entry; a stored negative outcome is
// a hit like any other, so callers can distinguish "never looked up" from
// "looked up and found nothing".
func GetJSON[T any](ctx context.Context, s CacheStore, name, key string) (*T, bool) {
	raw, err := s.Get(ctx, name, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}
	return &out, true
}

// SetJSON memoizes v under name/key for the store's TTL.
func SetJSON(ctx context.Context, s CacheStore, name, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(ctx, name, key, string(raw))
}
