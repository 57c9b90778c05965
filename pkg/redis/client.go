package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-cart/pkg/config"
	"github.com/angelmondragon/packfinderz-cart/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace       = "pf"
	cartPrefix         = "cart"
	cartUserSegment    = "u"
	reservationPrefix  = "cart_reservation"
	expiryNoticePrefix = "cart_expiry_notice"
	cartLockPrefix     = "cart_lock"
	lockPrefix         = "lock"
	rateLimitPrefix    = "rate_limit"

	defaultScanCount = 100
)

var ErrNotInitialized = errors.New("redis client not initialized")

// compareAndDeleteScript removes KEYS[1] only while it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// removeHashItemScript drops field ARGV[1] from the hash at KEYS[1]. The hash is deleted once
// no field starting with ARGV[2] remains; otherwise ARGV[3] is set to ARGV[4] and the TTL reset
// to ARGV[5] milliseconds. A missing hash is left alone and reported as -1.
var removeHashItemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
redis.call('HDEL', KEYS[1], ARGV[1])
local remaining = 0
for _, field in ipairs(redis.call('HKEYS', KEYS[1])) do
	if string.sub(field, 1, #ARGV[2]) == ARGV[2] then
		remaining = remaining + 1
	end
end
if remaining == 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return remaining
`)

type cmdable interface {
	redis.Scripter
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Exists(context.Context, ...string) *redis.IntCmd
	Del(context.Context, ...string) *redis.IntCmd
	HGet(context.Context, string, string) *redis.StringCmd
	HGetAll(context.Context, string) *redis.MapStringStringCmd
	Scan(context.Context, uint64, string, int64) *redis.ScanCmd
	TxPipelined(context.Context, func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Client wraps the redis connection helpers needed by the cart service.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "addr", opts.Addr), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// NewFromClient wraps an existing go-redis client without pinging it.
func NewFromClient(raw *redis.Client) *Client {
	if raw == nil {
		return &Client{}
	}
	return &Client{store: raw, raw: raw}
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", ErrNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, ErrNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if c.store == nil {
		return false, ErrNotInitialized
	}
	n, err := c.store.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Incr increments the counter stored at key.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c.store == nil {
		return 0, ErrNotInitialized
	}
	return c.store.Incr(ctx, key).Result()
}

// IncrWithTTL increments and ensures the key has the supplied TTL on the first increment.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if _, expErr := c.store.Expire(ctx, key, ttl).Result(); expErr != nil {
			return count, expErr
		}
	}
	return count, nil
}

// FixedWindowAllow applies a simple fixed-window rate limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	key := c.RateLimitKey(scope)
	count, err := c.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

// HGet returns a single hash field.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	if c.store == nil {
		return "", ErrNotInitialized
	}
	return c.store.HGet(ctx, key, field).Result()
}

// HGetAll returns every field of the hash at key. A missing key yields an empty map.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if c.store == nil {
		return nil, ErrNotInitialized
	}
	return c.store.HGetAll(ctx, key).Result()
}

// TxPipelined runs fn inside MULTI/EXEC.
func (c *Client) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	_, err := c.store.TxPipelined(ctx, fn)
	return err
}

// ScanKeys walks keys matching pattern page by page, handing each non-empty page to fn.
func (c *Client) ScanKeys(ctx context.Context, pattern string, count int64, fn func([]string) error) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	if count <= 0 {
		count = defaultScanCount
	}
	var cursor uint64
	for {
		keys, next, err := c.store.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// CompareAndDelete deletes key only when its value equals expected.
func (c *Client) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if c.store == nil {
		return false, ErrNotInitialized
	}
	n, err := compareAndDeleteScript.Run(ctx, c.store, []string{key}, expected).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RemoveHashItem deletes field from the hash at key and returns how many itemPrefix fields
// remain. The hash itself is deleted when none do; otherwise stampField is set to stamp and
// the TTL refreshed. It returns -1 without writing when key does not exist.
func (c *Client) RemoveHashItem(ctx context.Context, key, field, itemPrefix, stampField, stamp string, ttl time.Duration) (int64, error) {
	if c.store == nil {
		return 0, ErrNotInitialized
	}
	return removeHashItemScript.Run(ctx, c.store, []string{key},
		field, itemPrefix, stampField, stamp, ttl.Milliseconds()).Int64()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Del(ctx, keys...).Err()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return ErrNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// CartKey returns the record key for a hashed user identity.
func (c *Client) CartKey(userKey string) string {
	return c.buildKey(cartPrefix, cartUserSegment, userKey)
}

// CartKeyPattern matches every cart record.
func (c *Client) CartKeyPattern() string {
	return c.buildKey(cartPrefix, cartUserSegment, "*")
}

// CartReservationKey returns the checkout reservation key for a hashed user identity.
func (c *Client) CartReservationKey(userKey string) string {
	return c.buildKey(reservationPrefix, userKey)
}

// ExpiryNoticeKey returns the reminder dedup marker for (user, days until expiration).
func (c *Client) ExpiryNoticeKey(userKey string, days int) string {
	return c.buildKey(expiryNoticePrefix, userKey, strconv.Itoa(days))
}

// CartLockKey returns the per-user mutation lock key.
func (c *Client) CartLockKey(userKey string) string {
	return c.buildKey(cartLockPrefix, userKey)
}

// LockKey returns a namespaced key for named process locks.
func (c *Client) LockKey(name string) string {
	return c.buildKey(lockPrefix, name)
}

// RateLimitKey returns a namespaced key for rate limit counters.
func (c *Client) RateLimitKey(scope string) string {
	return c.buildKey(rateLimitPrefix, scope)
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
