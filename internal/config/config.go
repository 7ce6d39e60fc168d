package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env
	AppName string

	// Document store
	StoreDriver             string
	MongoURI                string
	MongoDbName             string
	MongoHintOrderedQueries bool

	// Redis. An empty address disables caching, pub/sub and the task queue.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string

	// Server
	ApiPort        string
	ServiceApiPort string
	CorsOrigins    []string

	// Inquiries
	InquiryTimeout    time.Duration
	InquiryCacheTTL   time.Duration
	BestEffortTimeout time.Duration

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogPath    string // LOG_EMAILS; also write every email to this file
	MockEmail       bool   // MOCK_SERVICES; store emails in Redis instead of sending

	// Presence
	PresenceTimeout   time.Duration
	HeartbeatInterval time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second

	// Logging
	LogLevel  string
	LogFormat string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists || value == "" {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getInt := func(key string, defaultValue int) (int, error) {
		v, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getSeconds := func(key string, defaultValue int) (time.Duration, error) {
		v, err := getInt(key, defaultValue)
		if err != nil {
			return 0, err
		}
		if v <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(v) * time.Second, nil
	}

	cfg.AppName = getEnv("APP_NAME", "Hama Estate")

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo))
	switch cfg.StoreDriver {
	case StoreDriverMongo:
		cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
		if err != nil {
			return nil, err
		}
	case StoreDriverMemory:
		cfg.MongoURI = getEnv("MONGO_URI", "")
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "estate")
	cfg.MongoHintOrderedQueries, err = strconv.ParseBool(getEnv("MONGO_HINT_ORDERED_QUERIES", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MONGO_HINT_ORDERED_QUERIES: %w", err)
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "8081")
	for _, origin := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CorsOrigins = append(cfg.CorsOrigins, origin)
		}
	}

	if cfg.InquiryTimeout, err = getSeconds("INQUIRY_TIMEOUT_SECONDS", 3); err != nil {
		return nil, err
	}
	if cfg.InquiryCacheTTL, err = getSeconds("INQUIRY_CACHE_TTL_SECONDS", 600); err != nil {
		return nil, err
	}
	if cfg.BestEffortTimeout, err = getSeconds("BEST_EFFORT_TIMEOUT_SECONDS", 10); err != nil {
		return nil, err
	}
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@estate.example.com")
	if cfg.SmtpPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.EmailLogPath = getEnv("LOG_EMAILS", "")
	cfg.MockEmail, err = strconv.ParseBool(getEnv("MOCK_SERVICES", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCK_SERVICES: %w", err)
	}

	if cfg.PresenceTimeout, err = getSeconds("PRESENCE_TIMEOUT_SECONDS", 2); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = getSeconds("HEARTBEAT_INTERVAL_SECONDS", 30); err != nil {
		return nil, err
	}

	// Rate Limiting
	if cfg.RateLimitSoftBucketSize, err = getInt("RATE_LIMIT_SOFT_BUCKET_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimitSoftRefillRate, err = getInt("RATE_LIMIT_SOFT_REFILL_RATE", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardBucketSize, err = getInt("RATE_LIMIT_HARD_BUCKET_SIZE", 60); err != nil {
		return nil, err
	}
	if cfg.RateLimitHardRefillRate, err = getInt("RATE_LIMIT_HARD_REFILL_RATE", 20); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "json"))

	return cfg, nil
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}
