package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-redis/redis/v8"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Cache is a key value store with per key expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// New returns a redis backed cache that uses process memory while redis is
// unavailable. A nil client gives a memory only cache.
func New(client *redis.Client) Cache {
	return &cache{
		client: client,
		memory: newMemoryCache(time.Now),
	}
}

type cache struct {
	client *redis.Client
	memory *memoryCache
}

func (c *cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		return c.memory.Get(ctx, key)
	}

	b, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return b, true
	}

	if !errors.Is(err, redis.Nil) {
		log := logging.GetFromContext(ctx)
		log.Debug().Err(err).Str("key", key).Msg("redis unavailable, using memory cache")
		return c.memory.Get(ctx, key)
	}

	return nil, false
}

func (c *cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.memory.Set(ctx, key, value, ttl)

	if c.client == nil {
		return
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log := logging.GetFromContext(ctx)
		log.Debug().Err(err).Str("key", key).Msg("could not write to redis cache")
	}
}

type item struct {
	value   []byte
	expires time.Time
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{
		items: map[string]item{},
		now:   now,
	}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.items[key]
	if !ok {
		return nil, false
	}

	if !m.now().Before(i.expires) {
		delete(m.items, key)
		return nil, false
	}

	return i.value, true
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	// drop expired items so the map does not grow without bound
	for k, i := range m.items {
		if !now.Before(i.expires) {
			delete(m.items, k)
		}
	}

	m.items[key] = item{value: value, expires: now.Add(ttl)}
}
