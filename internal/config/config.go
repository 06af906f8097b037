package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds push service configuration loaded from the environment.
type Config struct {
	AppName            string
	LogLevel           string
	LogFormat          string
	HTTPPort           string
	ServiceAccountJSON string
	DatabaseURL        string
	DeviceTokenTable   string
	RedisURL           string
	SuppressionTTL     time.Duration
	RabbitURL          string
	PushQueue          string
	DeadLetterQueue    string
	PrefetchCount      int
	WorkerCount        int
	FCMEndpoint        string
	ProviderTimeout    time.Duration
	RequestTimeout     time.Duration
}

// Load loads configuration and performs basic validation.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:            getEnv("APP_NAME", "push_service"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		HTTPPort:           getEnv("HTTP_PORT", "8082"),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		DeviceTokenTable:   getEnv("DEVICE_TOKEN_TABLE", "device_tokens"),
		RedisURL:           getEnv("REDIS_URL", ""),
		SuppressionTTL:     getEnvAsDuration("SUPPRESSION_TTL", 24*time.Hour),
		RabbitURL:          getEnv("RABBITMQ_URL", ""),
		PushQueue:          getEnv("PUSH_QUEUE", "push.queue"),
		DeadLetterQueue:    getEnv("PUSH_DLQ", "failed.queue"),
		PrefetchCount:      getEnvAsInt("PUSH_PREFETCH", 100),
		WorkerCount:        getEnvAsInt("WORKER_COUNT", 5),
		FCMEndpoint:        getEnv("FCM_ENDPOINT", "https://fcm.googleapis.com"),
		ProviderTimeout:    getEnvAsDuration("PROVIDER_TIMEOUT", 10*time.Second),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.ServiceAccountJSON == "" {
		missing = append(missing, "FIREBASE_SERVICE_ACCOUNT_JSON")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// RequireQueue reports an error when the queue connection is not configured.
func (c *Config) RequireQueue() error {
	if c.RabbitURL == "" {
		return fmt.Errorf("missing required environment variables: [RABBITMQ_URL]")
	}
	return nil
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}
