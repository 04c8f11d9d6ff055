// Package config loads navigator settings from defaults, an optional YAML file
// and the environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	EventBus   EventBusConfig   `mapstructure:"eventbus"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Incidents  IncidentsConfig  `mapstructure:"incidents"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Environment  string        `mapstructure:"environment"`
	ServiceName  string        `mapstructure:"service_name"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds REST handlers; the websocket route is exempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    string        `mapstructure:"cors_origins"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EventBusConfig points at the NATS server that receives navigation events.
type EventBusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// DirectionsConfig configures the upstream directions backend.
type DirectionsConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// IncidentsConfig configures the hazard service client and the proximity monitor.
type IncidentsConfig struct {
	BaseURL                 string        `mapstructure:"base_url"`
	Token                   string        `mapstructure:"token"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	PromptRadiusMeters      float64       `mapstructure:"prompt_radius_meters"`
	SuppressionRadiusMeters float64       `mapstructure:"suppression_radius_meters"`
	SuppressionWindow       time.Duration `mapstructure:"suppression_window"`
	RouteProximityMeters    float64       `mapstructure:"route_proximity_meters"`
}

// NavigationConfig holds tracker thresholds and session timing.
type NavigationConfig struct {
	OffRouteThresholdMeters     float64       `mapstructure:"off_route_threshold_meters"`
	DestinationThresholdMeters  float64       `mapstructure:"destination_threshold_meters"`
	MinDistanceToNextMeters     float64       `mapstructure:"min_distance_to_next_meters"`
	ShortInstructionMeters      float64       `mapstructure:"short_instruction_meters"`
	ShortInstructionSlackMeters float64       `mapstructure:"short_instruction_slack_meters"`
	MediumInstructionMeters     float64       `mapstructure:"medium_instruction_meters"`
	LongInstructionFactor       float64       `mapstructure:"long_instruction_factor"`
	MediumInstructionFactor     float64       `mapstructure:"medium_instruction_factor"`
	ETAInterval                 time.Duration `mapstructure:"eta_interval"`
	ReconcileInterval           time.Duration `mapstructure:"reconcile_interval"`
	MinSpeedMps                 float64       `mapstructure:"min_speed_mps"`
	EventBufferSize             int           `mapstructure:"event_buffer_size"`
	IdleSessionTTL              time.Duration `mapstructure:"idle_session_ttl"`
}

// ResilienceConfig groups runtime resilience controls.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig captures default and per-service breaker tuning.
type CircuitBreakerConfig struct {
	Enabled          bool                              `mapstructure:"enabled"`
	FailureThreshold int                               `mapstructure:"failure_threshold"`
	SuccessThreshold int                               `mapstructure:"success_threshold"`
	TimeoutSeconds   int                               `mapstructure:"timeout_seconds"`
	IntervalSeconds  int                               `mapstructure:"interval_seconds"`
	ServiceOverrides map[string]CircuitBreakerSettings `mapstructure:"service_overrides"`
}

// CircuitBreakerSettings overrides defaults for a specific upstream service.
type CircuitBreakerSettings struct {
	FailureThreshold int `mapstructure:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold int `mapstructure:"success_threshold" json:"success_threshold"`
	TimeoutSeconds   int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	IntervalSeconds  int `mapstructure:"interval_seconds" json:"interval_seconds"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

func setDefaults(v *viper.Viper, serviceName string) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.service_name", serviceName)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", "*")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("eventbus.enabled", false)
	v.SetDefault("eventbus.url", "nats://localhost:4222")

	v.SetDefault("directions.base_url", "http://localhost:8989")
	v.SetDefault("directions.token", "")
	v.SetDefault("directions.timeout", 10*time.Second)
	v.SetDefault("directions.cache_ttl", 2*time.Minute)

	v.SetDefault("incidents.base_url", "http://localhost:8989")
	v.SetDefault("incidents.token", "")
	v.SetDefault("incidents.timeout", 5*time.Second)
	v.SetDefault("incidents.prompt_radius_meters", 20.0)
	v.SetDefault("incidents.suppression_radius_meters", 30.0)
	v.SetDefault("incidents.suppression_window", 5*time.Minute)
	v.SetDefault("incidents.route_proximity_meters", 30.0)

	v.SetDefault("navigation.off_route_threshold_meters", 30.0)
	v.SetDefault("navigation.destination_threshold_meters", 20.0)
	v.SetDefault("navigation.min_distance_to_next_meters", 20.0)
	v.SetDefault("navigation.short_instruction_meters", 30.0)
	v.SetDefault("navigation.short_instruction_slack_meters", 5.0)
	v.SetDefault("navigation.medium_instruction_meters", 100.0)
	v.SetDefault("navigation.long_instruction_factor", 0.10)
	v.SetDefault("navigation.medium_instruction_factor", 0.08)
	v.SetDefault("navigation.eta_interval", 5*time.Second)
	v.SetDefault("navigation.reconcile_interval", 30*time.Second)
	v.SetDefault("navigation.min_speed_mps", 0.5)
	v.SetDefault("navigation.event_buffer_size", 64)
	v.SetDefault("navigation.idle_session_ttl", 2*time.Hour)

	v.SetDefault("resilience.circuit_breaker.enabled", true)
	v.SetDefault("resilience.circuit_breaker.failure_threshold", 5)
	v.SetDefault("resilience.circuit_breaker.success_threshold", 1)
	v.SetDefault("resilience.circuit_breaker.timeout_seconds", 30)
	v.SetDefault("resilience.circuit_breaker.interval_seconds", 60)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 0.1)
}

// Load reads configuration for serviceName. A .env file in the working
// directory is loaded first; navigator.yaml in ./ or ./config is optional.
// Environment variables use the key path with dots replaced by underscores,
// e.g. DIRECTIONS_BASE_URL.
func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, serviceName)

	v.SetConfigName("navigator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT", "ENVIRONMENT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if raw := v.GetString("cb_service_overrides"); raw != "" {
		var overrides map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = overrides
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the navigation engine cannot run with.
func (c *Config) Validate() error {
	n := c.Navigation
	positive := map[string]float64{
		"navigation.off_route_threshold_meters":   n.OffRouteThresholdMeters,
		"navigation.destination_threshold_meters": n.DestinationThresholdMeters,
		"navigation.short_instruction_meters":     n.ShortInstructionMeters,
		"navigation.medium_instruction_meters":    n.MediumInstructionMeters,
		"navigation.long_instruction_factor":      n.LongInstructionFactor,
		"navigation.medium_instruction_factor":    n.MediumInstructionFactor,
		"incidents.prompt_radius_meters":          c.Incidents.PromptRadiusMeters,
		"incidents.suppression_radius_meters":     c.Incidents.SuppressionRadiusMeters,
		"incidents.route_proximity_meters":        c.Incidents.RouteProximityMeters,
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", key, value)
		}
	}
	if n.ShortInstructionMeters >= n.MediumInstructionMeters {
		return fmt.Errorf("navigation.short_instruction_meters (%v) must be below navigation.medium_instruction_meters (%v)",
			n.ShortInstructionMeters, n.MediumInstructionMeters)
	}
	if n.ETAInterval <= 0 || n.ReconcileInterval <= 0 {
		return fmt.Errorf("navigation intervals must be positive")
	}
	if n.EventBufferSize <= 0 {
		return fmt.Errorf("navigation.event_buffer_size must be positive, got %d", n.EventBufferSize)
	}
	if c.Directions.BaseURL == "" {
		return fmt.Errorf("directions.base_url is required")
	}
	return nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name.
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}
	return settings
}

// Addr returns the Redis address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
