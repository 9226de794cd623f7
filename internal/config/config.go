package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion
	"time"    // For durations

	"github.com/joho/godotenv" // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort           string        // Application port
	DBUser            string        // Database user
	DBPassword        string        // Database password
	DBHost            string        // Database host
	DBPort            string        // Database port
	DBName            string        // Database name
	JWTSecret         string        // JWT secret key
	RedisAddr         string        // Redis server address
	RedisPass         string        // Redis password
	RedisDB           int           // Redis database number
	IsProd            bool          // Is production environment
	AdminCodeHash     string        // bcrypt hash of the admin access code
	WebhookSecret     string        // HMAC secret shared with the payment gateway
	ReconcileInterval time.Duration // Reconciler period
	TxMaxRetries      uint64        // Retries of a conflicting ledger transaction
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &Config{
		AppPort:           getenv("APP_PORT", "8080"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBHost:            getenv("DB_HOST", "127.0.0.1"),
		DBPort:            getenv("DB_PORT", "3306"),
		DBName:            os.Getenv("DB_NAME"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		RedisAddr:         getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:         os.Getenv("REDIS_PASS"),
		RedisDB:           redisDB,
		IsProd:            os.Getenv("IS_PROD") == "true",
		AdminCodeHash:     os.Getenv("ADMIN_CODE_HASH"),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 5*time.Minute),
		TxMaxRetries:      getUint("TX_MAX_RETRIES", 8),
	}
}

// DSN is the MySQL data source name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&loc=UTC"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return def
}

func getUint(key string, def uint64) uint64 {
	if n, err := strconv.ParseUint(os.Getenv(key), 10, 64); err == nil && n > 0 {
		return n
	}
	return def
}
