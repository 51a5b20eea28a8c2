package objectsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"imagegen/logger"
	"imagegen/models"
)

// LocalSource keeps objects as files under a base directory. It suits
// development and single-node deployments.
type LocalSource struct {
	baseDir string
}

func NewLocalSource(baseDir string) (*LocalSource, error) {
	if baseDir == "" {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(baseDir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &LocalSource{baseDir: baseDir}, nil
}

func (l *LocalSource) fullPath(key string) (string, error) {
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(l.baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return p, nil
}

func (l *LocalSource) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file %s: %w", p, err)
	}
	return data, nil
}

// Put writes data to baseDir/key. The content type is implied by the file
// extension on read.
func (l *LocalSource) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := l.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}

	logger.Infof("Successfully saved file '%s' to '%s'", key, fullPath)
	return nil
}

func (l *LocalSource) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	start, err := l.fullPath(prefix)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(prefix, "/") {
		start = filepath.Dir(start)
	}

	var objects []models.ObjectInfo
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == start {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, models.ObjectInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  mime.TypeByExtension(filepath.Ext(key)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return objects, nil
}

func (l *LocalSource) Close() error { return nil }
