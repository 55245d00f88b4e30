// Package cache keeps product snapshots and used order submission tokens in
// Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"storefront/internal/config"
	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "cache").Logger()

// ErrMiss is returned by ProductCache.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// NewClient connects to Redis. A nil client means caching is disabled.
func NewClient(ctx context.Context, c config.Redis) *redis.Client {
	if c.Addr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, caching disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msgf("Failed to connect to Redis at %s, caching disabled", c.Addr)
		rdb.Close()
		return nil
	}
	logger.Info().Msgf("Redis connected at %s", c.Addr)
	return rdb
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func (c *ProductCache) Get(ctx context.Context, id int64) (*entity.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var product entity.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal product %d: %w", id, err)
	}
	return &product, nil
}

func (c *ProductCache) Set(ctx context.Context, product *entity.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, productKey(product.ID), data, c.ttl).Err()
}

func (c *ProductCache) Delete(ctx context.Context, id int64) error {
	return c.rdb.Del(ctx, productKey(id)).Err()
}

// SubmissionGuard remembers order submission tokens so a resubmitted form
// cannot place a second order.
type SubmissionGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSubmissionGuard(rdb *redis.Client, ttl time.Duration) *SubmissionGuard {
	return &SubmissionGuard{rdb: rdb, ttl: ttl}
}

// Claim returns entity.ErrDuplicateSubmission when token was claimed before.
func (g *SubmissionGuard) Claim(ctx context.Context, token string) error {
	ok, err := g.rdb.SetNX(ctx, "order-submission:"+token, "claimed", g.ttl).Result()
	if err != nil {
		return entity.Infra("claim submission", err)
	}
	if !ok {
		return entity.ErrDuplicateSubmission
	}
	return nil
}

// Forget releases a token so the shopper may retry after a rejected order.
func (g *SubmissionGuard) Forget(ctx context.Context, token string) error {
	return g.rdb.Del(ctx, "order-submission:"+token).Err()
}
