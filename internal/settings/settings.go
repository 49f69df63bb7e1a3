// Package settings persists the station's operator-editable settings.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/redis/go-redis/v9"
)

const serverURLKey = "hackops:server_url"

var ErrInvalidURL = errors.New("invalid server url")

// Backend stores raw setting values.
type Backend interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value string) error
}

// Store resolves the server URL, falling back to a configured default when
// nothing has been saved.
type Store struct {
	backend  Backend
	fallback string
}

// New returns a store over backend.
func New(backend Backend, fallback string) *Store {
	return &Store{backend: backend, fallback: fallback}
}

// ServerURL returns the saved server URL or the fallback.
func (s *Store) ServerURL(ctx context.Context) (string, error) {
	v, ok, err := s.backend.Load(ctx, serverURLKey)
	if err != nil {
		return "", fmt.Errorf("load server url: %w", err)
	}
	if !ok {
		return s.fallback, nil
	}
	return v, nil
}

// SetServerURL validates and saves a server URL.
func (s *Store) SetServerURL(ctx context.Context, raw string) error {
	if err := ValidateURL(raw); err != nil {
		return err
	}
	return s.backend.Save(ctx, serverURLKey, raw)
}

// ValidateURL requires an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// Memory is a process-local Backend.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty backend.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Redis keeps settings as plain string keys.
type Redis struct {
	client *redis.Client
}

// NewRedis returns a backend on client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Load(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Save(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}
