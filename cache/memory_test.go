package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	payload := []byte{0x89, 'P', 'N', 'G', 0}
	require.NoError(t, s.Set(ctx, "k", payload))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	payload := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", payload))
	payload[0] = 'z'

	got, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(16, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	_, ok, _ := s.Get(ctx, "k")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStoreSetIsIdempotentAndLastWriterWins(t *testing.T) {
	s := NewMemoryStore(16, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("one")))
	require.NoError(t, s.Set(ctx, "k", []byte("one")))
	got, _, _ := s.Get(ctx, "k")
	assert.Equal(t, []byte("one"), got)
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Set(ctx, "k", []byte("two")))
	got, _, _ = s.Get(ctx, "k")
	assert.Equal(t, []byte("two"), got)
}

func TestMemoryStoreBounded(t *testing.T) {
	s := NewMemoryStore(2, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	require.NoError(t, s.Set(ctx, "c", []byte("3")))

	assert.Equal(t, 2, s.Len())
	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should be evicted")
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(0, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("k%d", j%10)
				_ = s.Set(ctx, key, []byte(key))
				if got, ok, _ := s.Get(ctx, key); ok {
					assert.Equal(t, []byte(key), got)
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore(2, time.Minute)
	require.NoError(t, s.Close())

	_, _, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", nil), ErrClosed)
}
