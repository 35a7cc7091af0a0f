package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"

	"github.com/Brownie44l1/smile-api/internal/model"
)

// DefaultTTL keeps a verdict around long enough to absorb repeated uploads.
const DefaultTTL = 10 * time.Minute

var ErrMiss = errors.New("cache miss")

// Entry is what gets stored for one (model, image) pair.
type Entry struct {
	RequestID string       `json:"request_id"`
	Result    model.Result `json:"result"`
	CreatedAt time.Time    `json:"created_at"`
}

// Cache stores detection results keyed by model and image digest.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Key identifies a verdict. Results are deterministic for a given model and
// image, so reloading a different model naturally bypasses old entries.
func Key(modelDigest, imageDigest string) string {
	return fmt.Sprintf("smile:%s:%s", modelDigest, imageDigest)
}

// Client is the subset of the go-redis client the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache is backed by go-redis.
type RedisCache struct {
	client Client
	ttl    time.Duration
}

func NewRedisCache(client Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := jsoniter.UnmarshalFromString(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return &entry, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return errors.New("nil cache entry")
	}
	serialized, err := jsoniter.MarshalToString(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, serialized, c.ttl).Err()
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, string, *Entry) error   { return nil }
