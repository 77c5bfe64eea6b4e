// Package storage is the object-storage boundary for profile photos (public)
// and verification documents (private, served through signed URLs).
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oggyb/amora/internal/config"
)

type Visibility int

const (
	Public Visibility = iota
	Private
)

type BlobStore interface {
	Upload(ctx context.Context, vis Visibility, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, vis Visibility, key string) error
	// PublicURL is stable and unauthenticated; only valid for Public keys.
	PublicURL(key string) string
	// SignedURL is time-limited; only valid for Private keys.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// New picks the driver from config. An empty driver yields the in-memory store.
func New(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "gcs":
		return NewGCS(ctx, cfg)
	case "s3", "minio":
		return NewMinIO(ctx, cfg)
	case "", "memory":
		return NewMemory(cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func privateBucket(cfg *config.Config) string {
	if cfg.Storage.PrivateBucket != "" {
		return cfg.Storage.PrivateBucket
	}
	return cfg.Storage.Bucket + "-private"
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
