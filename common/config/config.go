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
	Redis     RedisConfig
	Engine    EngineConfig
	OpenAI    OpenAIConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
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

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// ReportTTL is how long finished run reports stay cached.
	ReportTTL time.Duration
}

// EngineConfig holds workflow execution settings
type EngineConfig struct {
	// MaxInFlight bounds concurrent builtin handlers per run; 0 means one
	// per CPU core.
	MaxInFlight        int
	IntegrationTimeout time.Duration
	AITimeout          time.Duration
}

// OpenAIConfig holds the AI provider settings
type OpenAIConfig struct {
	APIKey string
}

// RateLimitConfig holds run submission throttling settings
type RateLimitConfig struct {
	Enabled       bool
	GlobalLimit   int64
	UserLimit     int64
	WindowSeconds int
}

// CacheConfig holds in-process cache settings
type CacheConfig struct {
	// DefinitionTTL is how long parsed workflow definitions stay cached.
	DefinitionTTL time.Duration
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
			Database:    getEnv("POSTGRES_DB", "flowrunner"),
			User:        getEnv("POSTGRES_USER", "flowrunner"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowrunner"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			ReportTTL: getEnvDuration("REPORT_TTL", 24*time.Hour),
		},
		Engine: EngineConfig{
			MaxInFlight:        getEnvInt("ENGINE_MAX_IN_FLIGHT", 0),
			IntegrationTimeout: getEnvDuration("ENGINE_INTEGRATION_TIMEOUT", 60*time.Second),
			AITimeout:          getEnvDuration("ENGINE_AI_TIMEOUT", 120*time.Second),
		},
		OpenAI: OpenAIConfig{
			APIKey: getEnv("OPENAI_API_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvBool("RATE_LIMIT_ENABLED", false),
			GlobalLimit:   int64(getEnvInt("RATE_LIMIT_GLOBAL", 100)),
			UserLimit:     int64(getEnvInt("RATE_LIMIT_USER", 30)),
			WindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SEC", 60),
		},
		Cache: CacheConfig{
			DefinitionTTL: getEnvDuration("WORKFLOW_CACHE_TTL", 5*time.Minute),
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

	if c.Engine.IntegrationTimeout <= 0 || c.Engine.AITimeout <= 0 {
		return fmt.Errorf("handler timeouts must be positive")
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
