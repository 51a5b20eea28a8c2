package objectsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagegen/config"
)

func TestScopedKey(t *testing.T) {
	key, err := ScopedKey("acme", "photos/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "acme/photos/cat.png", key)

	bad := []struct{ tenant, object string }{
		{"", "cat.png"},
		{"acme", ""},
		{"acme", "../other/cat.png"},
		{"acme", "photos/../../other/cat.png"},
		{"acme", "/etc/passwd"},
		{"acme", "photos//cat.png"},
		{"acme", `photos\cat.png`},
		{"ac/me", "cat.png"},
		{"..", "cat.png"},
	}
	for _, tt := range bad {
		_, err := ScopedKey(tt.tenant, tt.object)
		assert.ErrorIs(t, err, ErrInvalidKey, "%s %s", tt.tenant, tt.object)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	src, err := New(ctx, config.StorageConfig{Backend: "local", Local: config.LocalConfig{Root: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalSource{}, src)

	src, err = New(ctx, config.StorageConfig{Backend: "s3", Bucket: "images", S3: config.S3Config{Region: "us-east-1"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Source{}, src)

	_, err = New(ctx, config.StorageConfig{Backend: "s3"})
	assert.Error(t, err)

	_, err = New(ctx, config.StorageConfig{Backend: "sftp", SFTP: config.SFTPConfig{Host: "h", User: "u"}})
	assert.Error(t, err, "sftp without credentials")

	src, err = New(ctx, config.StorageConfig{Backend: "sftp", SFTP: config.SFTPConfig{Host: "h", User: "u", Password: "p"}})
	require.NoError(t, err)
	assert.IsType(t, &SFTPSource{}, src)

	_, err = New(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)
}
