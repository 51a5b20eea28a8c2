package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is a bounded in-process store. Entries expire after ttl and the
// least recently used entry is evicted once maxEntries is reached.
type MemoryStore struct {
	lru    *expirable.LRU[string, []byte]
	closed atomic.Bool
}

// NewMemoryStore creates a store holding at most maxEntries (0 = unbounded).
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{lru: expirable.NewLRU[string, []byte](maxEntries, nil, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, payload []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.lru.Add(key, clone(payload))
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.lru.Len()
}

func (s *MemoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.lru.Purge()
	}
	return nil
}
