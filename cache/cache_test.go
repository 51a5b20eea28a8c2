package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen/config"
)

type brokenStore struct{ calls int }

func (b *brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	b.calls++
	return nil, false, errors.New("connection refused")
}

func (b *brokenStore) Set(context.Context, string, []byte) error {
	b.calls++
	return errors.New("connection refused")
}

func (b *brokenStore) Close() error { return nil }

// hangingStore blocks until the context gives up.
type hangingStore struct{}

func (hangingStore) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (hangingStore) Set(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingStore) Close() error { return nil }

func TestResultCacheRoundTrip(t *testing.T) {
	rc := NewResultCache(NewMemoryStore(8, time.Minute), Options{TTL: time.Minute})
	ctx := context.Background()

	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)

	rc.Set(ctx, "k", []byte("payload"))
	got, ok := rc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
	assert.Equal(t, time.Minute, rc.TTL())
}

func TestResultCacheSwallowsBackendErrors(t *testing.T) {
	store := &brokenStore{}
	rc := NewResultCache(store, Options{TTL: time.Minute})

	got, ok := rc.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.Nil(t, got)

	assert.NotPanics(t, func() { rc.Set(context.Background(), "k", []byte("v")) })
	assert.Equal(t, 2, store.calls)
}

func TestResultCacheBoundsSlowBackend(t *testing.T) {
	rc := NewResultCache(hangingStore{}, Options{TTL: time.Minute, OpTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, ok := rc.Get(context.Background(), "k")
	assert.False(t, ok)
	rc.Set(context.Background(), "k", []byte("v"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestResultCacheSetSurvivesCancelledRequest(t *testing.T) {
	rc := NewResultCache(NewMemoryStore(8, time.Minute), Options{TTL: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rc.Set(ctx, "k", []byte("v"))
	_, ok := rc.Get(context.Background(), "k")
	assert.True(t, ok)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open(config.CacheConfig{Backend: "memory", TTL: time.Minute, MaxEntries: 4}, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(config.CacheConfig{Backend: "pebble", TTL: time.Minute}, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &PebbleStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(config.CacheConfig{Backend: "memcached"}, "")
	assert.Error(t, err)
}
