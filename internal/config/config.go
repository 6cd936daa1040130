package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Service Ports
	TCPHost  string `env:"TCP_HOST" default:"0.0.0.0"`
	TCPPort  int    `env:"TCP_PORT" default:"8000"`
	HTTPPort int    `env:"HTTP_PORT" default:"0"` // stats API, 0 = disabled

	// Wire protocol
	Framing        string `env:"FRAMING" default:"length"` // length | crlf
	MaxMessageSize int    `env:"MAX_MESSAGE_SIZE" default:"1048576"`

	// Connection lifecycle
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" default:"5m"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"5s"`

	// Per connection rate limit
	RateLimit float64 `env:"RATE_LIMIT" default:"0"` // frames per second, 0 = unlimited
	RateBurst int     `env:"RATE_BURST" default:"20"`

	// Development
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional => system env vars still apply
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("env_file_not_loaded", "error", err.Error())
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	// Ports
	if err := loadEnvString(&config.TCPHost, "TCP_HOST", "0.0.0.0"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TCPPort, "TCP_PORT", 8000); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 0); err != nil {
		return nil, err
	}

	// Wire protocol
	if err := loadEnvString(&config.Framing, "FRAMING", "length"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MaxMessageSize, "MAX_MESSAGE_SIZE", 1024*1024); err != nil {
		return nil, err
	}

	// Connection lifecycle
	if err := loadEnvDuration(&config.ReadTimeout, "READ_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.WriteTimeout, "WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ShutdownTimeout, "SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	// Rate limit
	if err := loadEnvFloat(&config.RateLimit, "RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.RateBurst, "RATE_BURST", 20); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvFloat(target *float64, key string, defaultValue float64) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	// Validate ports are in valid range
	if c.TCPPort < 0 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 0 and 65535")
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 0 and 65535")
	}
	if c.HTTPPort != 0 && c.HTTPPort == c.TCPPort {
		errors = append(errors, "HTTP_PORT must differ from TCP_PORT")
	}

	validFramings := []string{"length", "crlf"}
	if !contains(validFramings, c.Framing) {
		errors = append(errors, fmt.Sprintf("FRAMING must be one of: %s", strings.Join(validFramings, ", ")))
	}
	if c.MaxMessageSize < 1 {
		errors = append(errors, "MAX_MESSAGE_SIZE must be positive")
	}

	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errors = append(errors, "READ_TIMEOUT and WRITE_TIMEOUT must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		errors = append(errors, "SHUTDOWN_TIMEOUT must be positive")
	}

	if c.RateLimit < 0 {
		errors = append(errors, "RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errors = append(errors, "RATE_BURST must be at least 1 when RATE_LIMIT is set")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	// Validate log format
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// TCPAddr is the listen address for the TCP gateway
func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCPHost, c.TCPPort)
}

// HTTPAddr is the listen address for the stats API, empty when disabled
func (c *Config) HTTPAddr() string {
	if c.HTTPPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.TCPHost, c.HTTPPort)
}

// SlogLevel maps LOG_LEVEL onto slog
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
