// Package cache provides a small string key/value cache with TTLs, backed
// either by process memory or by a Valkey server.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a string cache. A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close()
}

// New returns a Valkey-backed store when url is set and a Memory store
// otherwise.
func New(url string, logger zerolog.Logger) (Store, error) {
	if url == "" {
		logger.Info().Msg("using in-memory cache")
		return NewMemory(), nil
	}
	v, err := NewValkey(url, "faxdesk:")
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("using valkey cache")
	return v, nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is a thread-safe in-process Store with lazy expiration.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrMiss
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", ErrMiss
	}
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Close() {}

// ---------------------------------------------------------------------------
// Valkey
// ---------------------------------------------------------------------------

// Valkey is a Store on a Valkey (or Redis) server. Keys are namespaced by
// prefix.
type Valkey struct {
	client valkey.Client
	prefix string
}

// NewValkey connects using a redis:// or valkey:// URL.
func NewValkey(url, prefix string) (*Valkey, error) {
	opt, err := valkey.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse valkey url: %w", err)
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect valkey: %w", err)
	}
	return &Valkey{client: client, prefix: prefix}, nil
}

// NewValkeyFromClient wraps an existing client.
func NewValkeyFromClient(client valkey.Client, prefix string) *Valkey {
	return &Valkey{client: client, prefix: prefix}
}

func (v *Valkey) Get(ctx context.Context, key string) (string, error) {
	s, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("valkey get: %w", err)
	}
	return s, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	set := v.client.B().Set().Key(v.prefix + key).Value(value)
	var err error
	if secs := int64(ttl / time.Second); secs > 0 {
		err = v.client.Do(ctx, set.ExSeconds(secs).Build()).Error()
	} else {
		err = v.client.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

func (v *Valkey) Close() { v.client.Close() }
