package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Claims records processed ids with SETNX so each is handled once.
type Claims struct{ R *redis.Client }

// Claim sets key only if absent. It returns false when another worker
// already holds it.
func (c *Claims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.R.SetNX(ctx, key, "1", ttl).Result()
}

// Forget drops a claim so the id can be retried.
func (c *Claims) Forget(ctx context.Context, key string) error {
	return c.R.Del(ctx, key).Err()
}

// JSONCache stores JSON-encoded values in Redis.
type JSONCache struct{ R *redis.Client }

func (c *JSONCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *JSONCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, b, ttl).Err()
}

func (c *JSONCache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.R.Del(ctx, keys...).Err()
}
