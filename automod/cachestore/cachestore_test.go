package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Code  string `json:"code"`
	Valid bool   `json:"valid"`
}

func TestGetSetPurge(t *testing.T) {
	ctx := context.Background()
	store := NewMemCacheStore(10, time.Minute)

	v, err := store.Get(ctx, "memo", "k1")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.Set(ctx, "memo", "k1", "cached"))
	v, err = store.Get(ctx, "memo", "k1")
	require.NoError(t, err)
	assert.Equal(t, "cached", v)

	// same key under a different name is a separate entry
	v, err = store.Get(ctx, "other", "k1")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, store.Purge(ctx, "memo", "k1"))
	v, err = store.Get(ctx, "memo", "k1")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestEntriesExpire(t *testing.T) {
	ctx := context.Background()
	store := NewMemCacheStore(10, 20*time.Millisecond)

	require.NoError(t, store.Set(ctx, "memo", "k1", "cached"))
	time.Sleep(60 * time.Millisecond)

	v, err := store.Get(ctx, "memo", "k1")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestJSONMemoRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemCacheStore(10, time.Minute)

	_, ok := GetJSON[verdict](ctx, store, "memo", "k1")
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, store, "memo", "k1", &verdict{Code: "abc123", Valid: true}))
	got, ok := GetJSON[verdict](ctx, store, "memo", "k1")
	require.True(t, ok)
	assert.Equal(t, &verdict{Code: "abc123", Valid: true}, got)
}

func TestJSONMemoNegativeOutcomeIsAHit(t *testing.T) {
	ctx := context.Background()
	store := NewMemCacheStore(10, time.Minute)

	require.NoError(t, SetJSON(ctx, store, "memo", "k1", &verdict{Code: "abc123", Valid: false}))
	got, ok := GetJSON[verdict](ctx, store, "memo", "k1")
	require.True(t, ok)
	assert.False(t, got.Valid)
}

func TestJSONMemoUndecodableEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemCacheStore(10, time.Minute)

	require.NoError(t, store.Set(ctx, "memo", "k1", "{not json"))
	_, ok := GetJSON[verdict](ctx, store, "memo", "k1")
	assert.False(t, ok)
}
