package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	ServerPort  string
	Environment string

	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	AuditLogPath string

	// Retention sweep
	RetentionWindow time.Duration
	SweepInterval   time.Duration // 0 disables the in-process sweeper

	AllowedOrigins []string
	PageSize       int

	// Rate limiting
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	RateLimitBlockTime   time.Duration
}

func Load() *Config {
	// Try to load .env file, but don't fail if it doesn't exist
	// (Docker containers use environment variables directly)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "sqlite://data/postboard.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		ServerPort:  getEnv("SERVER_PORT", ":8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AccessTokenExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", "15m"),
		RefreshTokenExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", "24h"),

		AuditLogPath: getEnv("AUDIT_LOG_PATH", "data/audit.log"),

		RetentionWindow: getEnvAsDuration("RETENTION_WINDOW", "240h"),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", "0s"),

		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		PageSize:       getEnvAsInt("PAGE_SIZE", 10),

		RateLimitMaxRequests: getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow:      getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		RateLimitBlockTime:   getEnvAsDuration("RATE_LIMIT_BLOCK_TIME", "5m"),
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters in production")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	if c.RetentionWindow <= 0 {
		return errors.New("RETENTION_WINDOW must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("PAGE_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAsInt retrieves environment variable as int with default value
func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Invalid %s value, using default: %d", key, defaultVal)
		return defaultVal
	}
	return val
}

// getEnvAsDuration retrieves environment variable as duration with default value
func getEnvAsDuration(key string, defaultVal string) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		valStr = defaultVal
	}
	duration, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Invalid %s value, using default: %s", key, defaultVal)
		duration, _ = time.ParseDuration(defaultVal)
	}
	return duration
}

// getEnvAsList splits a comma separated variable, dropping empty items.
func getEnvAsList(key, defaultVal string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultVal), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
