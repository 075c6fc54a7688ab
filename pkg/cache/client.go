// Package cache provides the typed key-value store facade (spec C1):
// hash-table operations, scalar get/set, pattern scan, and pub/sub,
// over a single shared Redis instance. Every higher component depends
// on the Store interface, never on *redis.Client directly, so the
// store is never exposed as a raw client to the rest of the codebase.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexusbridge/sequencer/pkg/logger"
)

// Store is the typed surface every cache-dependent component builds
// on. It deliberately does not expose transactions: the store is
// assumed to serialize each individual operation (linearizable
// per-key writes) but gives no multi-key transaction, so callers must
// design around that (spec §4.1).
type Store interface {
	// HSet sets a single hash field.
	HSet(ctx context.Context, key, field, value string) error
	// HGet reads a single hash field. ok is false when the field (or
	// key) does not exist.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)
	// HGetAll reads every field of a hash.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HDel removes a hash field.
	HDel(ctx context.Context, key, field string) error

	// Get reads a scalar key. ok is false when it does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes a scalar key, overwriting any prior value.
	Set(ctx context.Context, key, value string) error

	// ScanKeys enumerates every key matching a glob pattern (used for
	// the legacy bids:<transferId>:* index, §6). Uses a cursor-driven
	// SCAN rather than a blocking KEYS.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Publish publishes payload on a named channel.
	Publish(ctx context.Context, channel, payload string) error
}

// Client wraps a go-redis connection and implements Store.
type Client struct {
	rdb *redis.Client
}

// New creates a new Client from a Redis URL (e.g. redis://host:6379/0).
func New(redisURL string) (*Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is empty")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Cache().Warn().Err(err).Str("address", opts.Addr).Msg("redis connection test failed")
		// Don't fail - operations retry against the pool on each call.
	} else {
		logger.Cache().Info().Str("address", opts.Addr).Msg("redis connected")
	}

	return &Client{rdb: rdb}, nil
}

// NewFromClient wraps an already-constructed go-redis client, used by
// tests that want a miniredis-backed instance.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

func (c *Client) HDel(ctx context.Context, key, field string) error {
	return c.rdb.HDel(ctx, key, field).Err()
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping tests the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
