// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	DBPath         string
	ExamplePath    string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	IdentityAPIKey  string
	IdentityBaseURL string

	RateLimit  int
	RateWindow time.Duration

	SessionTTL      time.Duration
	GenerateTimeout time.Duration
	PersistTimeout  time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:4200,https://socraticbot-4bc8c.web.app")),
		DBPath:         getEnv("DB_PATH", "./data/acharya.db"),
		ExamplePath:    getEnv("EXAMPLE_PATH", "./example.txt"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", ""),

		IdentityAPIKey:  getEnv("IDENTITY_API_KEY", ""),
		IdentityBaseURL: getEnv("IDENTITY_BASE_URL", ""),

		RateLimit:  getEnvInt("RATE_LIMIT", 20),
		RateWindow: getEnvDuration("RATE_WINDOW", 60*time.Second),

		SessionTTL:      getEnvDuration("SESSION_TTL", 60*time.Minute),
		GenerateTimeout: getEnvDuration("GENERATE_TIMEOUT", 60*time.Second),
		PersistTimeout:  getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.IdentityAPIKey == "" {
		return fmt.Errorf("IDENTITY_API_KEY is required")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be > 0")
	}
	if c.RateWindow <= 0 {
		return fmt.Errorf("RATE_WINDOW must be > 0")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("ALLOWED_ORIGINS cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings and bare second counts.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	trimmed := strings.TrimSpace(value)
	if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(trimmed); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
