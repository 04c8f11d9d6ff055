package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/navigator/internal/directions"
	"github.com/richxcame/navigator/internal/incidents"
	"github.com/richxcame/navigator/internal/navigation"
	"github.com/richxcame/navigator/pkg/cache"
	"github.com/richxcame/navigator/pkg/common"
	"github.com/richxcame/navigator/pkg/config"
	apperrors "github.com/richxcame/navigator/pkg/errors"
	"github.com/richxcame/navigator/pkg/eventbus"
	"github.com/richxcame/navigator/pkg/httpclient"
	"github.com/richxcame/navigator/pkg/logger"
	"github.com/richxcame/navigator/pkg/middleware"
	"github.com/richxcame/navigator/pkg/redis"
	"github.com/richxcame/navigator/pkg/resilience"
	"github.com/richxcame/navigator/pkg/tracing"
	"github.com/richxcame/navigator/pkg/websocket"
	"go.uber.org/zap"
)

const (
	serviceName = "navigator"
	version     = "1.0.0"
)

var errNATSDisconnected = errors.New("nats connection is down")

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting navigator service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	// Initialize Sentry for error tracking
	sentryConfig := apperrors.DefaultSentryConfig(serviceName, cfg.Server.Environment)
	if sentryConfig.Release == "" {
		sentryConfig.Release = version
	}
	if err := apperrors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer apperrors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			SampleRate:     cfg.Tracing.SampleRate,
			Enabled:        true,
		}, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Redis backs the directions cache and session snapshots; without it both
	// degrade to no-ops.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := resilience.Retry(ctx, "redis-connect", resilience.StartupRetryPolicy(), func(context.Context) (*redis.Client, error) {
			return redis.NewRedisClient(cfg.Redis)
		})
		if err != nil {
			logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
		} else {
			redisClient = client
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("Failed to close redis client", zap.Error(err))
				}
			}()
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}
	var cacheManager *cache.Manager
	if redisClient != nil {
		cacheManager = cache.NewManager(redisClient)
	}

	var bus *eventbus.Bus
	if cfg.EventBus.Enabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.EventBus.URL
		busCfg.Name = serviceName
		bus, err = eventbus.New(ctx, busCfg)
		if err != nil {
			logger.Warn("Event bus unavailable, navigation events stay local", zap.Error(err))
			bus = nil
		} else {
			defer bus.Close()
			logger.Info("Connected to NATS", zap.String("url", cfg.EventBus.URL))
		}
	}

	directionsBreaker := newBreaker(cfg, "directions")
	incidentsBreaker := newBreaker(cfg, "incidents")

	directionsClient := httpclient.NewClient(cfg.Directions.BaseURL, cfg.Directions.Timeout,
		httpclient.WithTokenSource(httpclient.ContextTokenSource(cfg.Directions.Token)))
	incidentsClient := httpclient.NewClient(cfg.Incidents.BaseURL, cfg.Incidents.Timeout,
		httpclient.WithTokenSource(httpclient.ContextTokenSource(cfg.Incidents.Token)))

	directionsService := directions.NewService(
		directions.NewHTTPProvider(directionsClient),
		directionsBreaker,
		cacheManager,
		cfg.Directions.CacheTTL,
	)
	incidentService := incidents.NewHTTPService(incidentsClient, incidentsBreaker)

	hub := websocket.NewHub(logger.Get(), cfg.Server.CORSOrigins)
	go hub.Run(ctx)

	opts := []navigation.ManagerOption{
		navigation.WithHub(hub),
		navigation.WithIdleTTL(cfg.Navigation.IdleSessionTTL),
	}
	if bus != nil {
		opts = append(opts, navigation.WithPublisher(bus))
	}
	manager := navigation.NewManager(navigation.SessionConfigFrom(cfg), navigation.Dependencies{
		Directions: directionsService,
		Incidents:  incidentService,
		Cache:      cacheManager,
	}, opts...)

	managerDone := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(managerDone)
	}()
	if bus != nil {
		if err := manager.Subscribe(ctx, bus); err != nil {
			logger.Warn("Failed to subscribe to incident reports", zap.Error(err))
		}
	}

	handler := navigation.NewHandler(manager, hub)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.ForwardAuthorization())

	router.GET("/healthz", common.LivenessProbe(serviceName, version))
	router.GET("/health/live", common.LivenessProbe(serviceName, version))
	router.GET("/health/ready", common.ReadinessProbe(serviceName, version, readinessChecks(redisClient, bus)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	handler.RegisterStreamRoutes(api)

	rest := api.Group("")
	rest.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	handler.RegisterRoutes(rest)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Ends every session, which flushes the final events and snapshots.
	stop()
	select {
	case <-managerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for navigation sessions to end")
	}

	logger.Info("Server stopped")
}

func newBreaker(cfg *config.Config, service string) *resilience.CircuitBreaker {
	cb := cfg.Resilience.CircuitBreaker
	if !cb.Enabled {
		return nil
	}
	s := cb.SettingsFor(service)
	settings := resilience.SettingsFromSeconds(service, s.FailureThreshold, s.SuccessThreshold, s.TimeoutSeconds, s.IntervalSeconds)
	settings.IsFailure = httpclient.IsUpstreamFailure
	logger.Info("Circuit breaker configured",
		zap.String("service", service),
		zap.Int("failure_threshold", s.FailureThreshold),
		zap.Int("timeout_seconds", s.TimeoutSeconds),
	)
	return resilience.NewCircuitBreaker(settings)
}

func readinessChecks(redisClient *redis.Client, bus *eventbus.Bus) map[string]func() error {
	checks := map[string]func() error{}
	if redisClient != nil {
		checks["redis"] = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Ping(ctx)
		}
	}
	if bus != nil {
		checks["nats"] = func() error {
			if !bus.Connected() {
				return errNATSDisconnected
			}
			return nil
		}
	}
	return checks
}
