package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"imagegen/models"
)

// PebbleStore is a disk-backed store for single-node deployments that want
// results to survive restarts. Entries are JSON CacheEntry records; expiry is
// checked on read and swept by Purge.
type PebbleStore struct {
	DB       *pebble.DB
	DataFile string
	ttl      time.Duration
	now      func() time.Time
}

// OpenPebbleStore opens (or creates) a pebble DB at dataFile.
func OpenPebbleStore(dataFile string, ttl time.Duration) (*PebbleStore, error) {
	db, err := pebble.Open(dataFile, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return &PebbleStore{DB: db, DataFile: dataFile, ttl: ttl, now: time.Now}, nil
}

// SetClock replaces the time source. Tests use it to expire entries.
func (s *PebbleStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *PebbleStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, closer, err := s.DB.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var entry models.CacheEntry
	decodeErr := json.Unmarshal(value, &entry)
	closer.Close()
	if decodeErr != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, decodeErr)
	}

	if entry.Expired(s.now()) {
		// lazily drop it; a failed delete just leaves work for Purge
		_ = s.DB.Delete([]byte(key), pebble.NoSync)
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

func (s *PebbleStore) Set(_ context.Context, key string, payload []byte) error {
	now := s.now()
	data, err := json.Marshal(models.CacheEntry{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return s.DB.Set([]byte(key), data, pebble.NoSync)
}

// Purge deletes every expired entry and returns how many were removed.
func (s *PebbleStore) Purge(ctx context.Context) (int, error) {
	now := s.now()
	iter, err := s.DB.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to create iterator: %w", err)
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			iter.Close()
			return 0, err
		}
		var entry models.CacheEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil || entry.Expired(now) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("iteration error: %w", err)
	}

	batch := s.DB.NewBatch()
	defer batch.Close()
	for _, key := range keysToDelete {
		if err := batch.Delete(key, nil); err != nil {
			return 0, fmt.Errorf("failed to delete expired entry: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}
	return len(keysToDelete), nil
}

// Ping performs a cheap read to verify the database is usable.
func (s *PebbleStore) Ping(_ context.Context) error {
	_, closer, err := s.DB.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.DB.Close()
}
