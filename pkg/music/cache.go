package music

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store is a string key-value store with expiry. Get returns "" on a miss.
// *redis.Client from pkg/redis satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
}

type bypassKey struct{}

// WithoutCache marks ctx so a CachedProvider skips cache reads. Fresh results
// are still written back.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func cacheBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// CachedProvider remembers successful payloads of another Provider. "Not
// found" and errors are never cached. Cache failures are logged and ignored.
type CachedProvider struct {
	next  Provider
	store Store
	ttl   time.Duration
}

func NewCachedProvider(next Provider, store Store, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, store: store, ttl: ttl}
}

func (c *CachedProvider) Name() string {
	return c.next.Name()
}

func (c *CachedProvider) Lookup(ctx context.Context, q Query) (*Payload, error) {
	key := c.key("get", q.Artist, q.Title, q.Album)

	var cached Payload
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}

	p, err := c.next.Lookup(ctx, q)
	if err != nil || p == nil {
		return p, err
	}
	c.save(ctx, key, p)
	return p, nil
}

func (c *CachedProvider) Search(ctx context.Context, q Query) ([]Payload, error) {
	key := c.key("search", q.Artist, q.Title)

	var cached []Payload
	if c.load(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	results, err := c.next.Search(ctx, q)
	if err != nil || len(results) == 0 {
		return results, err
	}
	c.save(ctx, key, results)
	return results, nil
}

func (c *CachedProvider) key(op string, parts ...string) string {
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	return fmt.Sprintf("lyrics:%s:%s:%s", strings.ToLower(c.next.Name()), op, strings.Join(parts, "\x00"))
}

func (c *CachedProvider) load(ctx context.Context, key string, v any) bool {
	if cacheBypassed(ctx) {
		return false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}
	if raw == "" {
		logger.Debug().Str("key", key).Msg("Cache MISS")
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		if _, err := c.store.Del(ctx, key); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("Cache delete failed")
		}
		return false
	}
	logger.Debug().Str("key", key).Msg("Cache HIT")
	return true
}

func (c *CachedProvider) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	if err := c.store.SetWithExpiration(ctx, key, string(data), c.ttl); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryStore is a process-local Store, used when Redis is not configured.
type MemoryStore struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return "", nil
	}
	e := v.(memoryEntry)
	if !e.expires.IsZero() && m.now().After(e.expires) {
		m.entries.Delete(key)
		return "", nil
	}
	return e.value, nil
}

func (m *MemoryStore) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	e := memoryEntry{value: fmt.Sprint(value)}
	if expiration > 0 {
		e.expires = m.now().Add(expiration)
	}
	m.entries.Store(key, e)
	return nil
}

func (m *MemoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, k := range keys {
		if _, ok := m.entries.LoadAndDelete(k); ok {
			n++
		}
	}
	return n, nil
}
