package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Supabase   SupabaseConfig   `json:"supabase"`
	Cache      CacheConfig      `json:"cache"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
	Tracing    TracingConfig    `json:"tracing"`
	Security   SecurityConfig   `json:"security"`
	Alerting   AlertingConfig   `json:"alerting"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// SupabaseConfig contains Supabase project configuration
type SupabaseConfig struct {
	URL            string `json:"url"`
	AnonKey        string `json:"anon_key"`
	ServiceRoleKey string `json:"service_role_key"`
	JWTSecret      string `json:"jwt_secret"`
}

// CacheConfig contains tiered cache configuration
type CacheConfig struct {
	LocalMaxSize    int           `json:"local_max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	LocalTTLCeiling time.Duration `json:"local_ttl_ceiling"`
	BackfillTTL     time.Duration `json:"backfill_ttl"`
	StaleThreshold  time.Duration `json:"stale_threshold"`
	DefaultTTL      time.Duration `json:"default_ttl"`
}

// ResilienceConfig contains retry and circuit breaker configuration
type ResilienceConfig struct {
	MaxRetries        int           `json:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	Jitter            bool          `json:"jitter"`
	FailureThreshold  int           `json:"failure_threshold"`
	RecoveryTimeout   time.Duration `json:"recovery_timeout"`
	RetryAfterHint    time.Duration `json:"retry_after_hint"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SampleRatio    float64 `json:"sample_ratio"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	EncryptionKey  string `json:"encryption_key"`
	RateLimitRPS   int    `json:"rate_limit_rps"`
	RateLimitBurst int    `json:"rate_limit_burst"`
}

// AlertingConfig contains alerting configuration
type AlertingConfig struct {
	Enabled         bool   `json:"enabled"`
	SlackWebhookURL string `json:"slack_webhook_url"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:           getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:    getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			AllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "neurolab"),
			User:            getEnvString("DB_USER", "neurolab"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Supabase: SupabaseConfig{
			URL:            getEnvString("SUPABASE_URL", ""),
			AnonKey:        getEnvString("SUPABASE_ANON_KEY", ""),
			ServiceRoleKey: getEnvString("SUPABASE_SERVICE_ROLE_KEY", ""),
			JWTSecret:      getEnvString("SUPABASE_JWT_SECRET", ""),
		},
		Cache: CacheConfig{
			LocalMaxSize:    getEnvInt("CACHE_LOCAL_MAX_SIZE", 1000),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 60*time.Second),
			LocalTTLCeiling: getEnvDuration("CACHE_LOCAL_TTL_CEILING", 300*time.Second),
			BackfillTTL:     getEnvDuration("CACHE_BACKFILL_TTL", 60*time.Second),
			StaleThreshold:  getEnvDuration("CACHE_STALE_THRESHOLD", 300*time.Second),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 300*time.Second),
		},
		Resilience: ResilienceConfig{
			MaxRetries:        getEnvInt("RESILIENCE_MAX_RETRIES", 3),
			BaseDelay:         getEnvDuration("RESILIENCE_BASE_DELAY", 100*time.Millisecond),
			MaxDelay:          getEnvDuration("RESILIENCE_MAX_DELAY", 10*time.Second),
			BackoffMultiplier: getEnvFloat("RESILIENCE_BACKOFF_MULTIPLIER", 2.0),
			Jitter:            getEnvBool("RESILIENCE_JITTER", true),
			FailureThreshold:  getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			RecoveryTimeout:   getEnvDuration("RESILIENCE_RECOVERY_TIMEOUT", 60*time.Second),
			RetryAfterHint:    getEnvDuration("RESILIENCE_RETRY_AFTER_HINT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SampleRatio:    getEnvFloat("TRACING_SAMPLE_RATIO", 0.1),
		},
		Security: SecurityConfig{
			EncryptionKey:  getEnvString("ENCRYPTION_KEY", ""),
			RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
		},
		Alerting: AlertingConfig{
			Enabled:         getEnvBool("ALERTING_ENABLED", false),
			SlackWebhookURL: getEnvString("ALERT_SLACK_WEBHOOK_URL", ""),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if c.Supabase.JWTSecret == "" {
		return fmt.Errorf("Supabase JWT secret is required")
	}

	if c.Cache.LocalMaxSize <= 0 {
		return fmt.Errorf("cache local max size must be positive")
	}

	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}

	if c.Resilience.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0")
	}

	return nil
}

// DatabaseURL returns the database connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
