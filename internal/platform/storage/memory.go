package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

// Memory keeps blobs in process. Used for local development and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "http://localhost/media"
	}
	return &Memory{objects: map[string][]byte{}, baseURL: baseURL}
}

func memKey(vis Visibility, key string) string {
	if vis == Private {
		return "private/" + key
	}
	return "public/" + key
}

func (m *Memory) Upload(_ context.Context, vis Visibility, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(vis, key)] = b
	return nil
}

func (m *Memory) Delete(_ context.Context, vis Visibility, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, memKey(vis, key))
	return nil
}

// Has reports whether an object is stored.
func (m *Memory) Has(vis Visibility, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[memKey(vis, key)]
	return ok
}

func (m *Memory) PublicURL(key string) string {
	return joinURL(m.baseURL, key)
}

func (m *Memory) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if !m.Has(Private, key) {
		return "", fmt.Errorf("object %s not found", key)
	}
	q := url.Values{"expires": {fmt.Sprint(time.Now().Add(ttl).Unix())}}
	return joinURL(m.baseURL, "private/"+key) + "?" + q.Encode(), nil
}
