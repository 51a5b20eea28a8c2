// Package objectsource reads and writes tenant-scoped source images in a
// blob store. Keys have the form "{tenant}/{objectKey}".
package objectsource

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"imagegen/config"
	"imagegen/models"
)

var (
	// ErrNotFound is returned by Get when the object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for empty keys or keys that escape the tenant prefix.
	ErrInvalidKey = errors.New("invalid object key")
)

// Source is a blob store holding source images.
type Source interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]models.ObjectInfo, error)
	Close() error
}

// ScopedKey joins tenant and objectKey into a storage key, rejecting anything
// that would resolve outside the tenant's prefix.
func ScopedKey(tenant, objectKey string) (string, error) {
	if err := CheckTenant(tenant); err != nil {
		return "", err
	}
	if objectKey == "" || strings.HasPrefix(objectKey, "/") || strings.ContainsRune(objectKey, '\\') {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, objectKey)
	}
	for _, seg := range strings.Split(objectKey, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, objectKey)
		}
	}
	return path.Join(tenant, objectKey), nil
}

// CheckTenant rejects tenant ids that cannot be used as a single key segment.
func CheckTenant(tenant string) error {
	if tenant == "" || strings.ContainsAny(tenant, "/\\") || tenant == "." || tenant == ".." {
		return fmt.Errorf("%w: bad tenant %q", ErrInvalidKey, tenant)
	}
	return nil
}

// TenantPrefix is the listing prefix for a tenant.
func TenantPrefix(tenant string) string {
	return tenant + "/"
}

// New builds the source selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Source, error) {
	switch cfg.Backend {
	case "local":
		return NewLocalSource(cfg.Local.Root)
	case "s3":
		if cfg.Bucket == "" {
			return nil, errors.New("storage.bucket is required for the s3 backend")
		}
		return NewS3Source(cfg), nil
	case "gcs":
		if cfg.Bucket == "" {
			return nil, errors.New("storage.bucket is required for the gcs backend")
		}
		src, err := NewGCSSource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs source: %w", err)
		}
		return src, nil
	case "sftp":
		return NewSFTPSource(cfg.SFTP)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
