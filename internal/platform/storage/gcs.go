package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/oggyb/amora/internal/config"
)

// GCS stores blobs in two Google Cloud Storage buckets.
type GCS struct {
	client        *storage.Client
	publicBucket  string
	privateBucket string
	publicBaseURL string
}

func NewGCS(ctx context.Context, cfg *config.Config) (*GCS, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("STORAGE_BUCKET is required for gcs")
	}

	var opts []option.ClientOption
	switch {
	case cfg.Firebase.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	case cfg.Firebase.CredentialsBase64 != "":
		raw, err := base64.StdEncoding.DecodeString(cfg.Firebase.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(raw))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	base := cfg.Storage.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Storage.Bucket
	}
	return &GCS{
		client:        client,
		publicBucket:  cfg.Storage.Bucket,
		privateBucket: privateBucket(cfg),
		publicBaseURL: base,
	}, nil
}

func (g *GCS) bucket(vis Visibility) *storage.BucketHandle {
	if vis == Private {
		return g.client.Bucket(g.privateBucket)
	}
	return g.client.Bucket(g.publicBucket)
}

func (g *GCS) Upload(ctx context.Context, vis Visibility, key string, r io.Reader, _ int64, contentType string) error {
	w := g.bucket(vis).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if vis == Public {
		w.CacheControl = "public, max-age=86400"
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, vis Visibility, key string) error {
	err := g.bucket(vis).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", key, err)
	}
	return nil
}

func (g *GCS) PublicURL(key string) string {
	return joinURL(g.publicBaseURL, key)
}

func (g *GCS) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	u, err := g.bucket(Private).SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign %s: %w", key, err)
	}
	return u, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }
