package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Derive    DeriveConfig
	Cache     CacheConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// StorageConfig holds attachment blob storage settings
type StorageConfig struct {
	// Root directory for attachment bytes and derived artifacts
	Root string

	// Spool directory for in-flight multipart uploads.
	// Should live on the same filesystem as Root so the single-file
	// ingest path can hard-link instead of copying.
	SpoolDir string

	// Max accepted upload size in bytes
	MaxUploadBytes int64
}

// DeriveConfig holds derived-artifact settings
type DeriveConfig struct {
	ThumbnailSize int // square thumbnail edge, pixels
	InlineMaxW    int // inline variant bounding box
	InlineMaxH    int

	// Background thumbnail prewarming after image ingest
	PrewarmWorkers   int
	PrewarmQueueSize int
}

// CacheConfig holds metadata cache settings
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	DefaultTTL time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// RateLimitConfig holds upload rate limit settings
type RateLimitConfig struct {
	Enabled     bool
	GlobalLimit int64 // uploads per minute, service-wide
	UserLimit   int64 // uploads per minute, per user
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "attachd"),
			User:        getEnv("POSTGRES_USER", "attachd"),
			Password:    getEnv("POSTGRES_PASSWORD", "attachd"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Storage: StorageConfig{
			Root:           getEnv("STORAGE_ROOT", "./storage"),
			SpoolDir:       getEnv("STORAGE_SPOOL_DIR", "./storage/spool"),
			MaxUploadBytes: getEnvInt64("STORAGE_MAX_UPLOAD_BYTES", 100<<20),
		},
		Derive: DeriveConfig{
			ThumbnailSize:    getEnvInt("DERIVE_THUMBNAIL_SIZE", 100),
			InlineMaxW:       getEnvInt("DERIVE_INLINE_MAX_WIDTH", 640),
			InlineMaxH:       getEnvInt("DERIVE_INLINE_MAX_HEIGHT", 480),
			PrewarmWorkers:   getEnvInt("DERIVE_PREWARM_WORKERS", 2),
			PrewarmQueueSize: getEnvInt("DERIVE_PREWARM_QUEUE_SIZE", 100),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getEnvBool("RATE_LIMIT_ENABLED", false),
			GlobalLimit: getEnvInt64("RATE_LIMIT_GLOBAL", 600),
			UserLimit:   getEnvInt64("RATE_LIMIT_USER", 60),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}

	if c.Derive.ThumbnailSize <= 0 || c.Derive.InlineMaxW <= 0 || c.Derive.InlineMaxH <= 0 {
		return fmt.Errorf("derive dimensions must be positive")
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
