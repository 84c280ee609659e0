package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	PublicURL   string

	// Store configuration
	StoreBackend   string // embedded, sheet
	SheetScriptURL string
	StoreTimeout   time.Duration

	// Debounce configuration
	DebounceWindow  time.Duration
	DebounceBackend string // memory, redis

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (optional broadcast mirror)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// WebSocket configuration
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	SendBufferSize   int
	SnapshotOnAttach bool

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8090"),

		// Store
		StoreBackend:   getEnv("STORE_BACKEND", "embedded"),
		SheetScriptURL: getEnv("SHEET_SCRIPT_URL", ""),
		StoreTimeout:   getEnvAsDuration("STORE_TIMEOUT", "30s"),

		// Debounce
		DebounceWindow:  getEnvAsDuration("DEBOUNCE_WINDOW", "500ms"),
		DebounceBackend: getEnv("DEBOUNCE_BACKEND", "memory"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// WebSocket
		PingInterval:     getEnvAsDuration("WS_PING_INTERVAL", "30s"),
		WriteTimeout:     getEnvAsDuration("WS_WRITE_TIMEOUT", "10s"),
		SendBufferSize:   getEnvAsInt("WS_SEND_BUFFER", 64),
		SnapshotOnAttach: getEnvAsBool("WS_SNAPSHOT_ON_ATTACH", true),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
