package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Redis configuration for the shared validation cache
	Redis RedisConfig

	// Local key storage used when no database is configured
	Settings SettingsConfig

	// HTTP configuration
	HTTP HTTPConfig

	// Key validation configuration
	Validation ValidationConfig

	// VendorBaseURLs overrides vendor API base URLs, keyed by provider name
	VendorBaseURLs map[string]string

	// Logging configuration
	Log LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL string
}

// SettingsConfig holds the encrypted key file configuration
type SettingsConfig struct {
	Dir        string
	Passphrase string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port               int
	CORSAllowedOrigins string
	TimeoutSeconds     int
}

// ValidationConfig holds vendor key validation configuration
type ValidationConfig struct {
	TimeoutSeconds   int
	ConcurrencyLimit int
	CacheTTLSeconds  int
	ValidateOnAdd    bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Format string // text or json
	Level  string
}

const (
	vendorEnvPrefix = "VENDOR_"
	vendorEnvSuffix = "_BASE_URL"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Settings: SettingsConfig{
			Dir:        os.Getenv("SETTINGS_DIR"),
			Passphrase: os.Getenv("SETTINGS_PASSPHRASE"),
		},
		HTTP: HTTPConfig{
			Port:               getEnvInt("HTTP_PORT", 8080),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			TimeoutSeconds:     getEnvInt("HTTP_TIMEOUT_SECONDS", 30),
		},
		Validation: ValidationConfig{
			TimeoutSeconds:   getEnvInt("VALIDATION_TIMEOUT_SECONDS", 15),
			ConcurrencyLimit: getEnvInt("VALIDATION_CONCURRENCY_LIMIT", 4),
			CacheTTLSeconds:  getEnvInt("VALIDATION_CACHE_TTL_SECONDS", 300),
			ValidateOnAdd:    getEnvBool("VALIDATE_ON_ADD", false),
		},
		VendorBaseURLs: getVendorBaseURLs(os.Environ()),
		Log: LogConfig{
			Format: strings.ToLower(getEnvString("LOG_FORMAT", "text")),
			Level:  getEnvString("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTP.TimeoutSeconds)
	}
	if c.Validation.TimeoutSeconds <= 0 {
		return fmt.Errorf("VALIDATION_TIMEOUT_SECONDS must be positive, got %d", c.Validation.TimeoutSeconds)
	}
	if c.Validation.ConcurrencyLimit <= 0 {
		return fmt.Errorf("VALIDATION_CONCURRENCY_LIMIT must be positive, got %d", c.Validation.ConcurrencyLimit)
	}
	if c.Validation.CacheTTLSeconds <= 0 {
		return fmt.Errorf("VALIDATION_CACHE_TTL_SECONDS must be positive, got %d", c.Validation.CacheTTLSeconds)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasRedis returns true if a shared validation cache is configured
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

// Production reports whether logs should be emitted as JSON
func (c *Config) Production() bool {
	return c.Log.Format == "json"
}

// VendorBaseURL returns the configured base URL override for a provider, if any
func (c *Config) VendorBaseURL(provider string) string {
	return c.VendorBaseURLs[strings.ToLower(provider)]
}

// getVendorBaseURLs collects VENDOR_<NAME>_BASE_URL overrides from an environment listing
func getVendorBaseURLs(environ []string) map[string]string {
	urls := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		if !strings.HasPrefix(key, vendorEnvPrefix) || !strings.HasSuffix(key, vendorEnvSuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, vendorEnvPrefix), vendorEnvSuffix)
		if name == "" {
			continue
		}
		urls[strings.ToLower(name)] = strings.TrimRight(value, "/")
	}
	return urls
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		Redis: RedisConfig{
			URL: "",
		},
		Settings: SettingsConfig{
			Dir:        "",
			Passphrase: "test-passphrase",
		},
		HTTP: HTTPConfig{
			Port:               8080,
			CORSAllowedOrigins: "*",
			TimeoutSeconds:     30,
		},
		Validation: ValidationConfig{
			TimeoutSeconds:   15,
			ConcurrencyLimit: 4,
			CacheTTLSeconds:  300,
			ValidateOnAdd:    false,
		},
		VendorBaseURLs: map[string]string{},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}
