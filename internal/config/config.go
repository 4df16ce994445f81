package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey  string
	GeminiModel   string
	GeminiTimeout time.Duration

	// Persona (system instruction, greetings, sampling)
	PersonaFile string

	// Logging
	LogLevel string
	LogFile  string

	// Frontend
	FrontendURL string
}

// ClientConfig is read by the terminal client. Flags override these values.
type ClientConfig struct {
	ServerURL   string
	Timeout     time.Duration
	PersonaFile string
	LogLevel    string
	LogFile     string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:          getEnvOrDefault("PORT", "8080"),
		Env:           getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:  mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-pro"),
		GeminiTimeout: getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 60*time.Second),
		PersonaFile:   getEnvOrDefault("PERSONA_FILE", ""),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:       getEnvOrDefault("LOG_FILE", ""),
		FrontendURL:   getEnvOrDefault("FRONTEND_URL", "*"),
	}

	return cfg
}

func LoadClient() *ClientConfig {
	godotenv.Load()

	return &ClientConfig{
		ServerURL:   getEnvOrDefault("CHAT_SERVER_URL", "http://localhost:8080"),
		Timeout:     getEnvAsDurationOrDefault("CHAT_TIMEOUT", 0),
		PersonaFile: getEnvOrDefault("PERSONA_FILE", ""),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:     getEnvOrDefault("CHAT_LOG_FILE", ""),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Warnings lists settings that are allowed but risky for the current ENV.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.IsProduction() && c.FrontendURL == "*" {
		warnings = append(warnings, "FRONTEND_URL is * in production; any origin may call /api/chat")
	}
	if c.IsProduction() && c.LogLevel == "debug" {
		warnings = append(warnings, "LOG_LEVEL is debug in production")
	}
	return warnings
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs := getEnvAsIntOrDefault(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
