package keyedlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutualExclusion(t *testing.T) {
	assert := assert.New(t)
	m := New(time.Hour)

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With("user-1", func() {
				v := counter
				counter = v + 1
			})
		}()
	}
	wg.Wait()
	assert.Equal(50, counter)
}

func TestSweepEvictsIdleUnlocked(t *testing.T) {
	assert := assert.New(t)
	m := New(time.Minute)

	m.With("stale", func() {})
	assert.Equal(1, m.Len())

	// not idle long enough
	m.sweep(time.Now())
	assert.Equal(1, m.Len())

	m.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(0, m.Len())
}

func TestSweepSkipsHeldLock(t *testing.T) {
	assert := assert.New(t)
	m := New(time.Minute)

	release := m.Acquire("busy")
	m.sweep(time.Now().Add(time.Hour))
	assert.Equal(1, m.Len())

	release()
	m.sweep(time.Now().Add(2 * time.Hour))
	assert.Equal(0, m.Len())
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	m := New(time.Hour)

	release := m.Acquire("a")
	defer release()

	done := make(chan struct{})
	go func() {
		m.With("b", func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock for key b blocked behind key a")
	}
}
