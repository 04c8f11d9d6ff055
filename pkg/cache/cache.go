// Package cache stores JSON-encoded values in Redis with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/logger"
	redisclient "github.com/richxcame/navigator/pkg/redis"
	"github.com/richxcame/navigator/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Manager handles caching operations with JSON serialization. A nil Manager
// behaves as an always-empty cache.
type Manager struct {
	redis redisclient.ClientInterface
}

// NewManager creates a new cache manager.
func NewManager(redis redisclient.ClientInterface) *Manager {
	return &Manager{redis: redis}
}

// Get retrieves a cached value and unmarshals it into result.
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	if m == nil || m.redis == nil {
		return ErrMiss
	}
	data, err := m.redis.GetString(ctx, key)
	if errors.Is(err, redisclient.ErrNotFound) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to unmarshal cache value %s: %w", key, err)
	}
	return nil
}

// Set marshals and caches a value with expiration.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m == nil || m.redis == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
}

// GetOrSet fills result from the cache, or from fn on a miss. A successful
// fn result is written back; cache failures are logged and never surface.
func GetOrSet[T any](ctx context.Context, m *Manager, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	err := m.Get(ctx, key, &cached)
	if err == nil {
		tracing.AddSpanEvent(ctx, "cache.hit", attribute.String("cache.key", key))
		return cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		logger.WarnContext(ctx, "cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}

	if err := m.Set(ctx, key, value, ttl); err != nil {
		logger.WarnContext(ctx, "cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// Delete removes keys from the cache.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m == nil || m.redis == nil {
		return nil
	}
	return m.redis.Delete(ctx, keys...)
}

// CacheKeys builds cache keys.
type CacheKeys struct{}

var Keys = CacheKeys{}

// Directions keys a directions response by rounded endpoints and mode. Five
// decimals matches polyline precision.
func (k CacheKeys) Directions(origin, destination geo.Point, mode string) string {
	return fmt.Sprintf("directions:%s:%.5f,%.5f:%.5f,%.5f",
		strings.ToLower(mode), origin.Latitude, origin.Longitude, destination.Latitude, destination.Longitude)
}

// SessionProgress keys the last published progress snapshot of a session.
func (k CacheKeys) SessionProgress(sessionID string) string {
	return "navigation:session:" + sessionID
}

// CacheTTL defines common cache TTL durations.
type CacheTTL struct{}

var TTL = CacheTTL{}

func (t CacheTTL) Directions() time.Duration { return 2 * time.Minute }
func (t CacheTTL) Session() time.Duration    { return 2 * time.Hour }
