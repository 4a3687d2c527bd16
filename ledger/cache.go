package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached page lives when no TTL is configured.
const DefaultCacheTTL = 30 * time.Minute

const (
	// pageKeyPrefix namespaces cached list pages.
	pageKeyPrefix = "idalloc:txn:page:"

	// generationKey holds the counter that Invalidate bumps.
	generationKey = "idalloc:txn:gen"
)

// PageCache caches list pages between writes.
//
// Pages are stored under a generation. A reader takes the generation before
// it reads the store and passes it to GetPage and PutPage; Invalidate moves
// to a new generation, so a page computed from data read before a write is
// never served after that write.
//
// GetPage reports a miss with ok == false and a nil error.
type PageCache interface {
	Generation(ctx context.Context) (int64, error)
	GetPage(ctx context.Context, gen int64, req PageRequest) (page *Page[Transaction], ok bool, err error)
	PutPage(ctx context.Context, gen int64, req PageRequest, page Page[Transaction]) error
	Invalidate(ctx context.Context) error
}

// RedisPageCache stores pages as JSON values in Redis.
type RedisPageCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ PageCache = (*RedisPageCache)(nil)

// NewRedisPageCache returns a cache backed by client. ttl <= 0 uses
// DefaultCacheTTL.
func NewRedisPageCache(client redis.UniversalClient, ttl time.Duration) *RedisPageCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisPageCache{client: client, ttl: ttl}
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func pageKey(gen int64, req PageRequest) string {
	return fmt.Sprintf("%s%d:%d:%d", pageKeyPrefix, gen, req.Page, req.Size)
}

// Generation implements PageCache. A missing counter is generation 0.
func (c *RedisPageCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetPage implements PageCache.
func (c *RedisPageCache) GetPage(ctx context.Context, gen int64, req PageRequest) (*Page[Transaction], bool, error) {
	data, err := c.client.Get(ctx, pageKey(gen, req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var page Page[Transaction]
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, false, fmt.Errorf("decode cached page: %w", err)
	}
	return &page, true, nil
}

// PutPage implements PageCache.
func (c *RedisPageCache) PutPage(ctx context.Context, gen int64, req PageRequest, page Page[Transaction]) error {
	data, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pageKey(gen, req), data, c.ttl).Err()
}

// Invalidate starts a new generation and deletes the pages cached so far.
// Pages written later under an older generation are unreachable and expire
// with the TTL.
func (c *RedisPageCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return err
	}

	iter := c.client.Scan(ctx, 0, pageKeyPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// NopCache never stores anything.
type NopCache struct{}

var _ PageCache = NopCache{}

func (NopCache) Generation(context.Context) (int64, error) { return 0, nil }

func (NopCache) GetPage(context.Context, int64, PageRequest) (*Page[Transaction], bool, error) {
	return nil, false, nil
}

func (NopCache) PutPage(context.Context, int64, PageRequest, Page[Transaction]) error { return nil }

func (NopCache) Invalidate(context.Context) error { return nil }
