package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/richxcame/navigator/pkg/config"
	"github.com/richxcame/navigator/pkg/tracing"
)

const tracerName = "navigator/redis"

// ErrNotFound is returned by GetString when the key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// Client wraps the go-redis client.
type Client struct {
	*redis.Client
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(cfg config.RedisConfig) (*Client, error) {
	client := NewFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

// NewFromClient wraps an existing go-redis client, e.g. one from redismock.
func NewFromClient(rc *redis.Client) *Client {
	return &Client{Client: rc}
}

func (c *Client) SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return tracing.TraceRedisCommand(ctx, tracerName, "set", key, func(ctx context.Context) error {
		return c.Set(ctx, key, value, expiration).Err()
	})
}

// GetString returns the value at key, or ErrNotFound.
func (c *Client) GetString(ctx context.Context, key string) (string, error) {
	var value string
	err := tracing.TraceRedisCommand(ctx, tracerName, "get", key, func(ctx context.Context) error {
		var err error
		value, err = c.Get(ctx, key).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	return c.Del(ctx, keys...).Err()
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	result, err := c.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (c *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return c.Client.Expire(ctx, key, expiration).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
