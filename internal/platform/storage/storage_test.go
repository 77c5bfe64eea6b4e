package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/amora/internal/config"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("https://cdn.example.com/")

	require.NoError(t, m.Upload(ctx, Public, "photos/1/a.jpg", strings.NewReader("img"), 3, "image/jpeg"))
	assert.True(t, m.Has(Public, "photos/1/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/photos/1/a.jpg", m.PublicURL("photos/1/a.jpg"))

	_, err := m.SignedURL(ctx, "docs/1.pdf", time.Minute)
	assert.Error(t, err)

	require.NoError(t, m.Upload(ctx, Private, "docs/1.pdf", strings.NewReader("pdf"), 3, "application/pdf"))
	signed, err := m.SignedURL(ctx, "docs/1.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, signed, "expires=")

	require.NoError(t, m.Delete(ctx, Public, "photos/1/a.jpg"))
	assert.False(t, m.Has(Public, "photos/1/a.jpg"))
}

func TestNewPicksDriver(t *testing.T) {
	cfg := config.Default()
	store, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	cfg.Storage.Driver = "ftp"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Storage.Driver = "s3"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err, "endpoint is required")
}

func TestPrivateBucketDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Bucket = "amora-media"
	assert.Equal(t, "amora-media-private", privateBucket(cfg))
	cfg.Storage.PrivateBucket = "vault"
	assert.Equal(t, "vault", privateBucket(cfg))
}
