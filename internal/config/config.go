// Package config provides process-level configuration: environment
// variables, the YAML connection file, and logger setup.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all process-level configuration values. Conversation-level
// settings (model, sampling parameters, system prompt) come from the MCP
// server instead, see the serverconfig package.
type Config struct {
	// Completion API
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// Speech-to-text
	DeepgramAPIKey string

	// HTTP/WebSocket server
	Host           string
	Port           int
	MaxConnections int
	PingInterval   time.Duration
	PingTimeout    time.Duration

	// Connection config file (MCP server launch command)
	ConnectionFile string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),

		Host:           getEnv("VOXBRIDGE_HOST", "0.0.0.0"),
		Port:           getEnvInt("VOXBRIDGE_PORT", 8000),
		MaxConnections: getEnvInt("VOXBRIDGE_MAX_CONNECTIONS", 100),
		PingInterval:   getEnvDuration("VOXBRIDGE_PING_INTERVAL", 30*time.Second),
		PingTimeout:    getEnvDuration("VOXBRIDGE_PING_TIMEOUT", 10*time.Second),

		ConnectionFile: getEnv("VOXBRIDGE_CONFIG_FILE", "backend_config.yaml"),

		LogFile:  getEnv("VOXBRIDGE_LOG_FILE", "/tmp/voxbridge.log"),
		LogLevel: parseLogLevel(getEnv("VOXBRIDGE_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
