package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable of the orchestration core. Three-layer
// priority, lowest to highest: struct defaults, environment variables
// (prefix QORC_), then functional Options passed to NewConfig. applyEnv
// reads the env tags of RequestsPerMinute, RequestsPerHour, RedisURL, DSN,
// EnableTracking, StepTimeout, MaxRetries, ConfidenceThreshold and Level;
// the env tags on RedisDB, KeyTTLSlack, DecomposeTimeout, PlanTimeout,
// MaxConcurrency, PartialFailureContinuation and ParallelExecutionEnabled
// are not read from the environment.
type Config struct {
	RateLimit   RateLimitConfig
	Analytics   AnalyticsConfig
	Executor    ExecutorConfig
	CrossDomain CrossDomainConfig
	Logging     LoggingConfig
}

// RateLimitConfig configures the admission layer.
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" env:"QORC_RATE_LIMIT_PER_MINUTE" default:"60"`
	RequestsPerHour   int           `json:"requests_per_hour" env:"QORC_RATE_LIMIT_PER_HOUR" default:"1000"`
	RedisURL          string        `json:"redis_url" env:"QORC_RATE_LIMIT_REDIS_URL,REDIS_URL"`
	RedisDB           int           `json:"redis_db" env:"QORC_RATE_LIMIT_REDIS_DB" default:"1"`
	KeyTTLSlack       time.Duration `json:"key_ttl_slack" env:"QORC_RATE_LIMIT_TTL_SLACK" default:"1s"`
}

// AnalyticsConfig configures the durable routing-decision recorder.
type AnalyticsConfig struct {
	DSN            string `json:"dsn" env:"QORC_ANALYTICS_DSN" default:"file:analytics.db?_busy_timeout=5000"`
	EnableTracking bool   `json:"enable_tracking" env:"QORC_ANALYTICS_ENABLED" default:"true"`
}

// ExecutorConfig configures per-step execution.
type ExecutorConfig struct {
	StepTimeout       time.Duration `json:"step_timeout" env:"QORC_STEP_TIMEOUT" default:"30s"`
	DecomposeTimeout  time.Duration `json:"decompose_timeout" env:"QORC_DECOMPOSE_TIMEOUT" default:"10s"`
	PlanTimeout       time.Duration `json:"plan_timeout" env:"QORC_PLAN_TIMEOUT" default:"10s"`
	MaxRetries        int           `json:"max_retries" env:"QORC_MAX_RETRIES" default:"2"`
	MaxConcurrency    int           `json:"max_concurrency" env:"QORC_MAX_CONCURRENCY" default:"8"`
}

// CrossDomainConfig configures cross-domain detection thresholds.
type CrossDomainConfig struct {
	ConfidenceThreshold        float64 `json:"confidence_threshold" env:"QORC_CROSS_DOMAIN_THRESHOLD" default:"0.70"`
	PartialFailureContinuation bool    `json:"partial_failure_continuation" env:"QORC_PARTIAL_FAILURE_OK" default:"true"`
	ParallelExecutionEnabled   bool    `json:"parallel_execution_enabled" env:"QORC_PARALLEL_EXEC" default:"true"`
}

// LoggingConfig holds the configured log level. NewSimpleLogger does not
// read it; it takes its level from the LOG_LEVEL environment variable.
type LoggingConfig struct {
	Level string `json:"level" env:"QORC_LOG_LEVEL" default:"info"`
}

// Option is a functional configuration option applied after env parsing.
type Option func(*Config) error

// NewConfig builds a Config from defaults, then environment variables, then
// the supplied options, in that priority order (matching the ambient
// three-layer convention this codebase follows throughout).
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("core.NewConfig: %w", err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			RedisDB:           1,
			KeyTTLSlack:       1 * time.Second,
		},
		Analytics: AnalyticsConfig{
			DSN:            "file:analytics.db?_busy_timeout=5000",
			EnableTracking: true,
		},
		Executor: ExecutorConfig{
			StepTimeout:      30 * time.Second,
			DecomposeTimeout: 10 * time.Second,
			PlanTimeout:      10 * time.Second,
			MaxRetries:       2,
			MaxConcurrency:   8,
		},
		CrossDomain: CrossDomainConfig{
			ConfidenceThreshold:        0.70,
			PartialFailureContinuation: true,
			ParallelExecutionEnabled:   true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("QORC_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("QORC_RATE_LIMIT_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerHour = n
		}
	}
	if v := firstNonEmpty(os.Getenv("QORC_RATE_LIMIT_REDIS_URL"), os.Getenv("REDIS_URL")); v != "" {
		cfg.RateLimit.RedisURL = v
	}
	if v := os.Getenv("QORC_ANALYTICS_DSN"); v != "" {
		cfg.Analytics.DSN = v
	}
	if v := os.Getenv("QORC_ANALYTICS_ENABLED"); v != "" {
		cfg.Analytics.EnableTracking = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("QORC_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Executor.StepTimeout = d
		}
	}
	if v := os.Getenv("QORC_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Executor.MaxRetries = n
		}
	}
	if v := os.Getenv("QORC_CROSS_DOMAIN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CrossDomain.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("QORC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) validate() error {
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: requests_per_minute must be positive", ErrInvalidConfiguration)
	}
	if c.RateLimit.RequestsPerHour <= 0 {
		return fmt.Errorf("%w: requests_per_hour must be positive", ErrInvalidConfiguration)
	}
	if c.Executor.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max_concurrency must be positive", ErrInvalidConfiguration)
	}
	if c.CrossDomain.ConfidenceThreshold < 0 || c.CrossDomain.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0,1]", ErrInvalidConfiguration)
	}
	return nil
}

// WithRateLimits overrides the per-minute/per-hour admission thresholds.
func WithRateLimits(perMinute, perHour int) Option {
	return func(c *Config) error {
		c.RateLimit.RequestsPerMinute = perMinute
		c.RateLimit.RequestsPerHour = perHour
		return nil
	}
}

// WithRedisURL points the rate limiter at a shared Redis instance.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.RateLimit.RedisURL = url
		return nil
	}
}

// WithAnalyticsDSN overrides the SQLite DSN used by the analytics store.
func WithAnalyticsDSN(dsn string) Option {
	return func(c *Config) error {
		c.Analytics.DSN = dsn
		return nil
	}
}

// WithCrossDomainThreshold overrides CrossDomain.ConfidenceThreshold.
// Neither the orchestrator nor crossdomain.Handler reads this value;
// Handler.Detect attaches its own fixed per-path confidences.
func WithCrossDomainThreshold(threshold float64) Option {
	return func(c *Config) error {
		c.CrossDomain.ConfidenceThreshold = threshold
		return nil
	}
}
