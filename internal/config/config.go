package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	Server   ServerConfig
	GRPC     GRPCConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Log      LogConfig
	Upstream UpstreamConfig
	Budget   BudgetConfig
	Retry    RetryConfig
	Cache    CacheConfig
	Inbound  InboundConfig
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// GRPCConfig contains gRPC health endpoint settings. An empty address
// disables the gRPC listener.
type GRPCConfig struct {
	Address string
}

// StorageConfig selects the shared state backend. "memory" keeps limiter and
// cache state in-process, "redis" shares it across instances.
type StorageConfig struct {
	Backend string
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// UpstreamConfig contains the two remote listing sources.
type UpstreamConfig struct {
	PrimaryURL  string
	PrimaryKey  string
	ReadViewURL string
	ReadViewKey string
	Timeout     time.Duration
}

// BudgetConfig contains the shared outbound request budget settings.
type BudgetConfig struct {
	Limit    int64
	Window   time.Duration
	FailFast bool
}

// RetryConfig contains the primary-path retry policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// CacheConfig contains the page cache settings. A zero TTL disables caching,
// a zero WarmInterval disables the background warmer.
type CacheConfig struct {
	TTL          time.Duration
	WarmInterval time.Duration
	WarmLimit    int
}

// InboundConfig contains the per-client inbound rate limit.
type InboundConfig struct {
	Limit  int64
	Window time.Duration
}

// Load reads environment variables into Config. It expects godotenv to have been
// executed by the caller when needed (e.g. in development).
func Load() Config {
	server := ServerConfig{
		Host:         getEnv("APP_HOST", "0.0.0.0"),
		Port:         getEnvAsInt("APP_PORT", 3000),
		ReadTimeout:  getEnvAsDuration("APP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getEnvAsDuration("APP_WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getEnvAsDuration("APP_IDLE_TIMEOUT", 10*time.Second),
	}

	grpc := GRPCConfig{
		Address: getEnv("GRPC_ADDR", ""),
	}

	storage := StorageConfig{
		Backend: getEnv("STORAGE_BACKEND", "memory"),
	}

	redis := RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvAsInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
	}

	logCfg := LogConfig{
		Level:  getEnv("LOG_LEVEL", "debug"),
		Format: getEnv("LOG_FORMAT", "console"),
	}

	upstream := UpstreamConfig{
		PrimaryURL:  getEnv("PRIMARY_API_URL", ""),
		PrimaryKey:  getEnv("PRIMARY_API_KEY", ""),
		ReadViewURL: getEnv("READVIEW_URL", ""),
		ReadViewKey: getEnv("READVIEW_KEY", ""),
		Timeout:     getEnvAsDuration("UPSTREAM_TIMEOUT", 10*time.Second),
	}

	budget := BudgetConfig{
		Limit:    int64(getEnvAsInt("OUTBOUND_RATE_LIMIT", 60)),
		Window:   getEnvAsDuration("OUTBOUND_RATE_WINDOW", time.Minute),
		FailFast: getEnv("OUTBOUND_RATE_POLICY", "wait") == "fail_fast",
	}

	retry := RetryConfig{
		MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
		BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		Multiplier:  getEnvAsFloat("RETRY_MULTIPLIER", 2.0),
	}

	cache := CacheConfig{
		TTL:          getEnvAsDuration("CACHE_TTL", 30*time.Second),
		WarmInterval: getEnvAsDuration("CACHE_WARM_INTERVAL", 0),
		WarmLimit:    getEnvAsInt("CACHE_WARM_LIMIT", 20),
	}

	inbound := InboundConfig{
		Limit:  int64(getEnvAsInt("INBOUND_RATE_LIMIT", 120)),
		Window: getEnvAsDuration("INBOUND_RATE_WINDOW", time.Minute),
	}

	return Config{
		Server:   server,
		GRPC:     grpc,
		Storage:  storage,
		Redis:    redis,
		Log:      logCfg,
		Upstream: upstream,
		Budget:   budget,
		Retry:    retry,
		Cache:    cache,
		Inbound:  inbound,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}

	dur, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return dur
}

func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("warning: could not load .env: %v", err)
		}
	}
}

// RedisAddr returns the Redis address in host:port format
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ServerAddr returns the server address in host:port format
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
