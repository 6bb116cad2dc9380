package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type Config struct {
	// Service
	ServiceName string
	Environment string
	HTTPAddr    string
	LogLevel    string
	LogFile     string

	// Storage
	StorageBackend string
	StorageTimeout time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Upstreams
	PaymentAPIURL      string
	OrderAPIURL        string
	MerchantLabel      string
	PaymentSuccessRate float64
	PaymentDelay       time.Duration

	// Checkout step timeouts
	IntentTimeout  time.Duration
	PaymentTimeout time.Duration
	OrderTimeout   time.Duration

	// Circuit breakers
	BreakerFailures    int
	BreakerOpenTimeout time.Duration

	ShutdownTimeout time.Duration
}

// Load reads .env (or the given files) into the process environment without overriding
// variables already set, then builds the configuration. A missing default .env is not an error.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return New(), nil
}

func New() *Config {
	c := &Config{
		ServiceName: getEnv("SERVICE_NAME", "minishop-cart"),
		Environment: getEnv("ENV", "dev"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", ""),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		StorageTimeout: getEnvAsDuration("STORAGE_TIMEOUT", 2*time.Second),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvAsInt("REDIS_DB", 0),

		PaymentAPIURL:      getEnv("PAYMENT_API_URL", "http://localhost:4242"),
		OrderAPIURL:        getEnv("ORDER_API_URL", ""),
		MerchantLabel:      getEnv("MERCHANT_LABEL", "Minishop"),
		PaymentSuccessRate: getEnvAsFloat("PAYMENT_SUCCESS_RATE", 0.7),
		PaymentDelay:       getEnvAsDuration("PAYMENT_DELAY", 0),

		IntentTimeout:  getEnvAsDuration("INTENT_TIMEOUT", 10*time.Second),
		PaymentTimeout: getEnvAsDuration("PAYMENT_TIMEOUT", 5*time.Minute),
		OrderTimeout:   getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),

		BreakerFailures:    getEnvAsInt("BREAKER_FAILURES", 5),
		BreakerOpenTimeout: getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if c.StorageBackend != StorageRedis {
		c.StorageBackend = StorageMemory
	}
	if c.PaymentSuccessRate < 0 || c.PaymentSuccessRate > 1 {
		c.PaymentSuccessRate = 0.7
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	return c
}

// UsesLocalOrderBook reports whether orders are recorded in-process instead of over HTTP.
func (c *Config) UsesLocalOrderBook() bool {
	return strings.TrimSpace(c.OrderAPIURL) == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
