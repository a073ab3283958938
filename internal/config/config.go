package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Stripe      StripeConfig
	Calendar    CalendarConfig
	Permissions PermissionsConfig
	PickupCode  PickupCodeConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// ResourceLockTTL bounds how long a booking resource stays locked
	// while an assignment is in flight.
	ResourceLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	Notifications string
	Alerts        string
}

type StripeConfig struct {
	SecretKey string
}

type CalendarConfig struct {
	BaseURL string
	Timeout time.Duration
}

type PermissionsConfig struct {
	// RoleCacheTTL is the staleness window for cached role permission sets.
	RoleCacheTTL time.Duration
}

type PickupCodeConfig struct {
	Secret string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "fulfillment_user"),
			Password:     getEnv("DB_PASSWORD", "fulfillment_pass"),
			Database:     getEnv("DB_NAME", "fulfillment"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			ResourceLockTTL: time.Duration(getEnvInt("RESOURCE_LOCK_TTL_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				Notifications: getEnv("KAFKA_TOPIC_NOTIFICATIONS", "fulfillment.notifications"),
				Alerts:        getEnv("KAFKA_TOPIC_ALERTS", "fulfillment.alerts"),
			},
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Calendar: CalendarConfig{
			BaseURL: getEnv("CALENDAR_SERVICE_URL", "http://calendar-service:8080"),
			Timeout: time.Duration(getEnvInt("CALENDAR_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Permissions: PermissionsConfig{
			RoleCacheTTL: time.Duration(getEnvInt("ROLE_CACHE_TTL_MINUTES", 5)) * time.Minute,
		},
		PickupCode: PickupCodeConfig{
			Secret: getEnv("PICKUP_CODE_SECRET", "dev-pickup-secret"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
