package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yashrajoria/settlement-service/models"
)

// ErrMiss is returned by Get when nothing is cached for the reference.
var ErrMiss = errors.New("cache miss")

const keyPrefix = "settlement:view:"

// SettlementCache stores serialized settlement views in Redis with a TTL.
// Writers invalidate after every commit, so the TTL only bounds staleness
// when an invalidation is lost.
type SettlementCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewSettlementCache(client redis.Cmdable, ttl time.Duration) *SettlementCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettlementCache{client: client, ttl: ttl}
}

func Key(refCode string) string {
	return keyPrefix + refCode
}

func (c *SettlementCache) Get(ctx context.Context, refCode string) (*models.SettlementView, error) {
	raw, err := c.client.Get(ctx, Key(refCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	var view models.SettlementView
	if err := json.Unmarshal(raw, &view); err != nil {
		// corrupt entry, treat as a miss and let the next Set replace it
		return nil, ErrMiss
	}
	return &view, nil
}

func (c *SettlementCache) Set(ctx context.Context, refCode string, view *models.SettlementView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(refCode), raw, c.ttl).Err()
}

func (c *SettlementCache) Invalidate(ctx context.Context, refCode string) error {
	return c.client.Del(ctx, Key(refCode)).Err()
}
