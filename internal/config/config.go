package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Daraja   DarajaConfig
	Store    StoreConfig
	LogLevel string
}

// ServerConfig holds callback server configuration
type ServerConfig struct {
	Host      string
	Port      string
	PublicURL string
}

// DarajaConfig holds Daraja API credentials and environment selection
type DarajaConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	Environment    string
	Timeout        time.Duration

	// BaseURLOverride points the client at a non-standard gateway,
	// e.g. a local sandbox proxy. Empty means the environment decides.
	BaseURLOverride string
}

// StoreConfig holds notification store configuration
type StoreConfig struct {
	MaxNotifications int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:      getEnv("CALLBACK_HOST", "localhost"),
			Port:      getEnv("CALLBACK_PORT", "3000"),
			PublicURL: strings.TrimSuffix(getEnv("PUBLIC_URL", ""), "/"),
		},
		Daraja: DarajaConfig{
			ConsumerKey:     getEnv("DARAJA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("DARAJA_CONSUMER_SECRET", ""),
			Shortcode:       getEnv("DARAJA_SHORTCODE", ""),
			Passkey:         getEnv("DARAJA_PASSKEY", ""),
			Environment:     strings.ToLower(getEnv("DARAJA_ENV", "sandbox")),
			Timeout:         parseDuration(getEnv("DARAJA_TIMEOUT", "30s"), 30*time.Second),
			BaseURLOverride: strings.TrimSuffix(getEnv("DARAJA_BASE_URL", ""), "/"),
		},
		Store: StoreConfig{
			MaxNotifications: parseInt(getEnv("MAX_NOTIFICATIONS", "100"), 100),
		},
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
	}

	if config.Server.PublicURL == "" {
		config.Server.PublicURL = fmt.Sprintf("http://localhost:%s", config.Server.Port)
	}

	// Validate required fields
	if config.Daraja.ConsumerKey == "" || config.Daraja.ConsumerSecret == "" {
		return nil, fmt.Errorf("DARAJA_CONSUMER_KEY and DARAJA_CONSUMER_SECRET are required")
	}
	if config.Daraja.Shortcode == "" {
		return nil, fmt.Errorf("DARAJA_SHORTCODE is required")
	}
	if config.Daraja.Passkey == "" {
		return nil, fmt.Errorf("DARAJA_PASSKEY is required")
	}
	if config.Daraja.Environment != "sandbox" && config.Daraja.Environment != "production" {
		return nil, fmt.Errorf("DARAJA_ENV must be sandbox or production, got %q", config.Daraja.Environment)
	}

	return config, nil
}

// BaseURL returns the Daraja API base URL for the configured environment
func (c *DarajaConfig) BaseURL() string {
	if c.BaseURLOverride != "" {
		return c.BaseURLOverride
	}
	if c.Environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// CallbackURL returns the externally reachable payment callback URL
func (c *Config) CallbackURL() string {
	return c.Server.PublicURL + "/mpesa/callback"
}

// TimeoutURL returns the externally reachable timeout callback URL
func (c *Config) TimeoutURL() string {
	return c.Server.PublicURL + "/mpesa/timeout"
}

// ListenAddr returns the address the callback server binds to
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// parseInt parses string to int with default value
func parseInt(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// parseDuration parses string to time.Duration with default value
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
