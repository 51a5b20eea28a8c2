package objectsource

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"imagegen/config"
	"imagegen/logger"
	"imagegen/models"
)

// GCSSource reads objects from a Google Cloud Storage bucket.
type GCSSource struct {
	client *storage.Client
	bucket string
}

// NewGCSSource uses the service account file from cfg, or application
// default credentials when none is configured.
func NewGCSSource(ctx context.Context, cfg config.StorageConfig) (*GCSSource, error) {
	var opts []option.ClientOption
	if cfg.GCS.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCS.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSSource{client: client, bucket: cfg.Bucket}, nil
}

func (g *GCSSource) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, g.bucket, key)
		}
		return nil, fmt.Errorf("Object.NewReader: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (g *GCSSource) Put(ctx context.Context, key string, data []byte, contentType string) error {
	wc := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("Writer.Write: %w", err)
	}
	// Close completes the upload
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, g.bucket)
	return nil
}

func (g *GCSSource) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []models.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", g.bucket, err)
		}
		objects = append(objects, models.ObjectInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			ContentType:  attrs.ContentType,
		})
	}
	return objects, nil
}

func (g *GCSSource) Close() error {
	return g.client.Close()
}
