// Package countstore provides TTL-scoped integer counters, used for
// violation hit tracking. Counters silently expire; incrementing refreshes
// the TTL, so a quiet user's record ages out on its own.
package countstore

import (
	"context"
)

type CountStore interface {
	GetCount(ctx context.Context, name, key string) (int, error)
	// Increment adds one and returns the new count.
	Increment(ctx context.Context, name, key string) (int, error)
	Reset(ctx context.Context, name, key string) error
}
