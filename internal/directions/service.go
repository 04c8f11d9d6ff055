package directions

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/navigator/pkg/cache"
	"github.com/richxcame/navigator/pkg/geo"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/resilience"
	"github.com/richxcame/navigator/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "navigator/directions"

// Service wraps a Provider with a circuit breaker, a short-lived response
// cache and tracing. Every failure surfaces as ErrNoRouteAvailable.
type Service struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
	cache    *cache.Manager
	cacheTTL time.Duration
}

// NewService creates the directions service. breaker and cacheManager may be nil.
func NewService(provider Provider, breaker *resilience.CircuitBreaker, cacheManager *cache.Manager, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = cache.TTL.Directions()
	}
	return &Service{
		provider: provider,
		breaker:  breaker,
		cache:    cacheManager,
		cacheTTL: cacheTTL,
	}
}

// GetDirections returns the route variants between two points. A response
// without any path is ErrNoRouteAvailable.
func (s *Service) GetDirections(ctx context.Context, req Request) (*Response, error) {
	key := cache.Keys.Directions(req.Origin, req.Destination, req.Mode.BackendMode())

	resp, err := cache.GetOrSet(ctx, s.cache, key, s.cacheTTL, func(ctx context.Context) (*Response, error) {
		return s.call(ctx, "get_directions", func(ctx context.Context) (*Response, error) {
			tracing.AddSpanAttributes(ctx, attribute.String("navigation.travel_mode", string(req.Mode)))
			return s.provider.GetDirections(ctx, req)
		})
	})
	if err != nil {
		logger.WarnContext(ctx, "directions request failed",
			zap.String("mode", string(req.Mode)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrNoRouteAvailable, err)
	}
	return resp, nil
}

// GetUserRoute returns the server-recovered route. It is never cached.
func (s *Service) GetUserRoute(ctx context.Context, origin *geo.Point) (*Response, error) {
	resp, err := s.call(ctx, "get_user_route", func(ctx context.Context) (*Response, error) {
		return s.provider.GetUserRoute(ctx, origin)
	})
	if err != nil {
		logger.WarnContext(ctx, "user route request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrNoRouteAvailable, err)
	}
	return resp, nil
}

func (s *Service) call(ctx context.Context, operation string, fn func(context.Context) (*Response, error)) (*Response, error) {
	return tracing.TraceExternalCall(ctx, tracerName, "directions", operation, func(ctx context.Context) (*Response, error) {
		resp, err := resilience.Call(ctx, s.breaker, fn)
		if err != nil {
			return nil, err
		}
		if resp.Empty() {
			return nil, fmt.Errorf("%s returned no path", operation)
		}
		return resp, nil
	})
}
