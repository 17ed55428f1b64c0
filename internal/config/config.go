// Package config provides environment configuration for the assistant.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Live transport kinds.
const (
	TransportNATS      = "nats"
	TransportWebSocket = "websocket"
	TransportNone      = "none"
)

// Config holds all configuration for the application.
type Config struct {
	// Local API
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Backend
	APIBaseURL string
	APITimeout time.Duration
	DevBackend bool

	// Durable state
	StateDBPath string

	// Live channel
	LiveTransport string
	NATSURL       string
	NATSCAFile    string
	NATSCertFile  string
	NATSKeyFile   string
	NATSToken     string
	WSURL         string

	// Chat
	DefaultChatMode string
	HistoryPageSize int
	AlertDuration   time.Duration

	// LLM (dev backend only)
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables, after an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Local API
		ServerPort:         getEnv("PORT", "8787"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Backend
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:5000"),
		APITimeout: getDurationEnv("API_TIMEOUT", 60*time.Second),
		DevBackend: getBoolEnv("DEV_BACKEND", false),

		// Durable state
		StateDBPath: getEnv("STATE_DB_PATH", "data/assistant.db"),

		// Live channel
		LiveTransport: getEnv("LIVE_TRANSPORT", TransportWebSocket),
		NATSURL:       getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:    getEnv("NATS_CA_FILE", ""),
		NATSCertFile:  getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:   getEnv("NATS_KEY_FILE", ""),
		NATSToken:     getEnv("NATS_TOKEN", ""),
		WSURL:         getEnv("WS_URL", "ws://localhost:5000/live"),

		// Chat
		DefaultChatMode: getEnv("DEFAULT_CHAT_MODE", "property-search"),
		HistoryPageSize: getIntEnv("HISTORY_PAGE_SIZE", 10),
		AlertDuration:   getDurationEnv("ALERT_DURATION", 5*time.Second),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
