package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/amora/internal/config"
)

const likeCountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// GetJSON decodes a cached JSON value. A miss returns (false, nil).
func (c *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return c.Client.Set(ctx, key, raw, ttl).Err()
}

// KeyForLikeCount generates Redis key for a user's liked-you count.
func (c *RedisCache) KeyForLikeCount(userID uint64) string {
	return fmt.Sprintf("likes:count:%d", userID)
}

// GetLikeCount reads the cached liked-you count and refreshes its TTL.
func (c *RedisCache) GetLikeCount(ctx context.Context, userID uint64) (int64, bool, error) {
	key := c.KeyForLikeCount(userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	_ = c.Client.Expire(ctx, key, likeCountTTL).Err()
	return n, true, nil
}

func (c *RedisCache) SetLikeCount(ctx context.Context, userID uint64, count int64) error {
	return c.Client.Set(ctx, c.KeyForLikeCount(userID), count, likeCountTTL).Err()
}

// InvalidateLikeCount drops the cached count so the next read hits the DB.
func (c *RedisCache) InvalidateLikeCount(ctx context.Context, userID uint64) error {
	return c.Client.Del(ctx, c.KeyForLikeCount(userID)).Err()
}

func (c *RedisCache) keyForDiscoveryVersion(userID uint64) string {
	return fmt.Sprintf("discovery:ver:%d", userID)
}

// DiscoveryVersion returns the user's page-cache generation; 0 when unset.
func (c *RedisCache) DiscoveryVersion(ctx context.Context, userID uint64) (int64, error) {
	n, err := c.Client.Get(ctx, c.keyForDiscoveryVersion(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// BumpDiscoveryVersion orphans every cached discovery page of the user.
func (c *RedisCache) BumpDiscoveryVersion(ctx context.Context, userID uint64) error {
	key := c.keyForDiscoveryVersion(userID)
	pipe := c.Client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 24*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}

// KeyForDiscoveryPage identifies one cached page of candidates.
func (c *RedisCache) KeyForDiscoveryPage(userID uint64, version int64, order string, offset, limit int) string {
	return fmt.Sprintf("discovery:page:%d:%d:%s:%d:%d", userID, version, order, offset, limit)
}

// ClaimWebhookEvent records an event id; false means it was already claimed.
func (c *RedisCache) ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, "webhook:event:"+eventID, 1, ttl).Result()
}

// ReleaseWebhookEvent undoes a claim when processing failed.
func (c *RedisCache) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	return c.Client.Del(ctx, "webhook:event:"+eventID).Err()
}

// IncrementWindow bumps a fixed-window counter, setting its TTL on first hit.
func (c *RedisCache) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if key == "" || window <= 0 {
		return 0, fmt.Errorf("invalid rate window")
	}
	count, err := c.Client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment rate key: %w", err)
	}
	if count == 1 {
		if err := c.Client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("set rate key ttl: %w", err)
		}
	}
	return count, nil
}

// WindowCount reads a fixed-window counter without bumping it.
func (c *RedisCache) WindowCount(ctx context.Context, key string) (int64, error) {
	n, err := c.Client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
