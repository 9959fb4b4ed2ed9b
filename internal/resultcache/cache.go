// Package resultcache stores filtered id lists keyed by fact table
// generation and filter digest, so repeated filters skip the engine.
package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Cache stores ordered id lists. A miss returns ok=false and no error.
type Cache interface {
	Get(ctx context.Context, key string) (ids []string, ok bool, err error)
	Set(ctx context.Context, key string, ids []string) error
	Close() error
}

// Key builds the cache key of a filter result. Results of older
// generations are never returned because the generation is part of the key.
func Key(generation, filterKey string) string {
	return generation + ":" + filterKey
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// Config selects and sizes the cache.
type Config struct {
	Driver     string
	RedisAddr  string
	RedisDB    int
	TTL        time.Duration
	MaxEntries int
}

// Open returns the configured cache. DriverNone yields a cache that never
// hits.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemory(cfg.MaxEntries, cfg.TTL), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, eris.Wrapf(err, "resultcache: ping redis %s", cfg.RedisAddr)
		}
		return NewRedis(client, cfg.TTL), nil
	case DriverNone:
		return nop{}, nil
	}
	return nil, eris.Errorf("resultcache: unknown driver %q", cfg.Driver)
}

type nop struct{}

func (nop) Get(context.Context, string) ([]string, bool, error) { return nil, false, nil }
func (nop) Set(context.Context, string, []string) error         { return nil }
func (nop) Close() error                                        { return nil }

type entry struct {
	ids     []string
	expires time.Time
}

// Memory is an in-process cache bounded by entry count. When full, the
// entry closest to expiry is evicted.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewMemory creates a memory cache. Non-positive limits fall back to 256
// entries and five minutes.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memory{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns a copy of the cached ids.
func (m *Memory) Get(_ context.Context, key string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]string(nil), e.ids...), true, nil
}

// Set stores a copy of ids.
func (m *Memory) Set(_ context.Context, key string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxEntries {
		m.evict(now)
	}
	m.entries[key] = entry{ids: append([]string(nil), ids...), expires: now.Add(m.ttl)}
	return nil
}

func (m *Memory) evict(now time.Time) {
	var oldest string
	var oldestAt time.Time
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
			continue
		}
		if oldest == "" || e.expires.Before(oldestAt) {
			oldest, oldestAt = k, e.expires
		}
	}
	if len(m.entries) >= m.maxEntries && oldest != "" {
		delete(m.entries, oldest)
	}
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
