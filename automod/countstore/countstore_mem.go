package countstore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemCountStore struct {
	// expirable LRU refreshes the entry TTL on Add, which gives the
	// "refreshed on every hit" semantics the escalator needs
	Counts *expirable.LRU[string, int]

	mu sync.Mutex
}

func NewMemCountStore(capacity int, ttl time.Duration) *MemCountStore {
	return &MemCountStore{
		Counts: expirable.NewLRU[string, int](capacity, nil, ttl),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, key string) (int, error) {
	v, ok := s.Counts.Get(name + "/" + key)
	if !ok {
		return 0, nil
	}
	return v, nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := name + "/" + key
	v, _ := s.Counts.Get(k)
	v++
	s.Counts.Add(k, v)
	return v, nil
}

func (s *MemCountStore) Reset(ctx context.Context, name, key string) error {
	s.Counts.Remove(name + "/" + key)
	return nil
}
