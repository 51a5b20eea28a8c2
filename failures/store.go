// Package failures journals requests whose fetch or transform failed so that
// tenants can see why an image did not render.
package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// FailureRecord represents a processing failure
type FailureRecord struct {
	Hash      string    `json:"hash"` // hashed cache key of the request
	Tenant    string    `json:"tenant"`
	ObjectKey string    `json:"object_key"`
	Spec      string    `json:"spec"`
	Stage     string    `json:"stage"` // fetch or transform
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is a pebble-backed failure journal. Records are keyed by
// "{tenant}/{hash}" so a tenant's records are one contiguous range.
type Store struct {
	db  *pebble.DB
	now func() time.Time
}

// Open opens (or creates) the failure store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open failure store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the failure store
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(tenant, hash string) []byte {
	return []byte(tenant + "/" + hash)
}

// StoreFailure records rec, replacing any earlier failure for the same
// tenant and hash. A zero Timestamp is set to now.
func (s *Store) StoreFailure(rec FailureRecord) error {
	if rec.Tenant == "" || rec.Hash == "" {
		return errors.New("failure record needs tenant and hash")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	return s.db.Set(recordKey(rec.Tenant, rec.Hash), data, pebble.Sync)
}

// GetFailure retrieves a tenant's failure record by hash. It returns nil, nil
// when there is none.
func (s *Store) GetFailure(tenant, hash string) (*FailureRecord, error) {
	data, closer, err := s.db.Get(recordKey(tenant, hash))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get failure: %w", err)
	}
	defer closer.Close()

	var record FailureRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failure record: %w", err)
	}
	return &record, nil
}

// DeleteFailure removes a failure record
func (s *Store) DeleteFailure(tenant, hash string) error {
	return s.db.Delete(recordKey(tenant, hash), pebble.Sync)
}

// ListFailures returns every failure record for tenant.
func (s *Store) ListFailures(tenant string) ([]FailureRecord, error) {
	lower := []byte(tenant + "/")
	upper := []byte(tenant + "0") // '0' sorts right after '/'
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	failures := []FailureRecord{}
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		failures = append(failures, record)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iteration error: %w", err)
	}
	return failures, nil
}

// CleanupOldRecords removes failure records older than maxAge and reports
// how many were deleted.
func (s *Store) CleanupOldRecords(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var keysToDelete [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var record FailureRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			keysToDelete = append(keysToDelete, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("iteration error: %w", err)
	}

	for _, key := range keysToDelete {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete old failure record: %w", err)
		}
	}
	return len(keysToDelete), nil
}

// CheckHealth performs a basic health check on the failures database
func (s *Store) CheckHealth() error {
	_, closer, err := s.db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
