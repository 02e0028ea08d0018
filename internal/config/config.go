package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (offer cache backend)
	Redis RedisConfig

	// JWT configuration (customer identity verification)
	JWT JWTConfig

	// Aggregator configuration
	Aggregator AggregatorConfig

	// Offer cache configuration
	OfferCache OfferCacheConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Booking audit log configuration
	Audit AuditConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port             string
	Environment      string // development, staging, production
	LogLevel         string // debug, info, warn, error
	EnableRequestLog bool
	SecureCookies    bool
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// AggregatorConfig holds the flight aggregator endpoint settings
type AggregatorConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// OfferCacheConfig holds offer cache settings
type OfferCacheConfig struct {
	Backend       string // "redis" or "memory"
	TTL           time.Duration
	Grace         time.Duration
	PurgeSchedule string // cron expression with seconds, memory backend only
}

// RateLimitConfig holds the per-session booking submission limit
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	Burst         int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// AuditConfig holds booking audit log settings
type AuditConfig struct {
	RetentionDays   int // 0 keeps audit logs forever
	CleanupSchedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv reads configuration from the process environment without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Environment:      getEnv("ENVIRONMENT", "development"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			SecureCookies:    getEnvAsBool("SECURE_COOKIES", false),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Aggregator: AggregatorConfig{
			BaseURL: getEnv("AGGREGATOR_BASE_URL", ""),
			APIKey:  getEnv("AGGREGATOR_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("AGGREGATOR_TIMEOUT_SECONDS", 20)) * time.Second,
		},
		OfferCache: OfferCacheConfig{
			Backend:       getEnv("OFFER_CACHE_BACKEND", "redis"),
			TTL:           time.Duration(getEnvAsInt("OFFER_CACHE_TTL_MINUTES", 45)) * time.Minute,
			Grace:         time.Duration(getEnvAsInt("OFFER_CACHE_GRACE_MINUTES", 120)) * time.Minute,
			PurgeSchedule: getEnv("OFFER_CACHE_PURGE_SCHEDULE", "0 */5 * * * *"),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("RATE_LIMIT_REQUESTS", 10),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			Burst:         getEnvAsInt("RATE_LIMIT_BURST", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Session-ID"}),
		},
		Audit: AuditConfig{
			RetentionDays:   getEnvAsInt("AUDIT_RETENTION_DAYS", 365),
			CleanupSchedule: getEnv("AUDIT_CLEANUP_SCHEDULE", "0 0 3 * * *"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Aggregator.BaseURL == "" {
		return fmt.Errorf("AGGREGATOR_BASE_URL is required")
	}

	if c.Aggregator.Timeout <= 0 {
		return fmt.Errorf("AGGREGATOR_TIMEOUT_SECONDS must be positive")
	}

	switch c.OfferCache.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis offer cache")
		}
	case "memory":
		if c.OfferCache.PurgeSchedule == "" {
			return fmt.Errorf("OFFER_CACHE_PURGE_SCHEDULE is required for the memory offer cache")
		}
	default:
		return fmt.Errorf("invalid OFFER_CACHE_BACKEND: %s (must be 'redis' or 'memory')", c.OfferCache.Backend)
	}

	if c.OfferCache.TTL <= 0 {
		return fmt.Errorf("OFFER_CACHE_TTL_MINUTES must be positive")
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative")
	}

	return nil
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
