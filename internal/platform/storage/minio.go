package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/oggyb/amora/internal/config"
)

// MinIO stores blobs on any S3-compatible endpoint.
type MinIO struct {
	client        *minio.Client
	publicBucket  string
	privateBucket string
	publicBaseURL string

	ensureOnce sync.Once
	ensureErr  error
}

func NewMinIO(_ context.Context, cfg *config.Config) (*MinIO, error) {
	if cfg.Storage.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.Storage.Bucket == "" {
		return nil, errors.New("STORAGE_BUCKET is required for s3")
	}

	client, err := minio.New(cfg.Storage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.AccessKey, cfg.Storage.SecretKey, ""),
		Secure: cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	base := cfg.Storage.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.Storage.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Storage.Endpoint, cfg.Storage.Bucket)
	}
	return &MinIO{
		client:        client,
		publicBucket:  cfg.Storage.Bucket,
		privateBucket: privateBucket(cfg),
		publicBaseURL: base,
	}, nil
}

func (m *MinIO) ensureBuckets(ctx context.Context) error {
	m.ensureOnce.Do(func() {
		for _, b := range []string{m.publicBucket, m.privateBucket} {
			exists, err := m.client.BucketExists(ctx, b)
			if err != nil {
				m.ensureErr = fmt.Errorf("check bucket %s: %w", b, err)
				return
			}
			if exists {
				continue
			}
			if err := m.client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
				m.ensureErr = fmt.Errorf("create bucket %s: %w", b, err)
				return
			}
		}
	})
	return m.ensureErr
}

func (m *MinIO) bucket(vis Visibility) string {
	if vis == Private {
		return m.privateBucket
	}
	return m.publicBucket
}

func (m *MinIO) Upload(ctx context.Context, vis Visibility, key string, r io.Reader, size int64, contentType string) error {
	if err := m.ensureBuckets(ctx); err != nil {
		return err
	}
	_, err := m.client.PutObject(ctx, m.bucket(vis), key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func (m *MinIO) Delete(ctx context.Context, vis Visibility, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket(vis), key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (m *MinIO) PublicURL(key string) string {
	return joinURL(m.publicBaseURL, key)
}

func (m *MinIO) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.privateBucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return u.String(), nil
}
