package countstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncrementAndReset(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemCountStore(1000, time.Hour)

	c, err := s.GetCount(ctx, "hits", "user-1")
	assert.NoError(err)
	assert.Equal(0, c)

	for i := 1; i <= 3; i++ {
		c, err = s.Increment(ctx, "hits", "user-1")
		assert.NoError(err)
		assert.Equal(i, c)
	}

	// counters are namespaced
	c, err = s.GetCount(ctx, "hits", "user-2")
	assert.NoError(err)
	assert.Equal(0, c)

	assert.NoError(s.Reset(ctx, "hits", "user-1"))
	c, err = s.GetCount(ctx, "hits", "user-1")
	assert.NoError(err)
	assert.Equal(0, c)
}

func TestConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemCountStore(1000, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "hits", "user-1")
		}()
	}
	wg.Wait()

	c, err := s.GetCount(ctx, "hits", "user-1")
	assert.NoError(err)
	assert.Equal(100, c)
}
