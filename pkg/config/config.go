package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	PowerBI  PowerBIConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// PowerBIConfig holds upstream BI provider configuration
type PowerBIConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	// TokenURL overrides the default Azure AD token endpoint derived
	// from TenantID (used by tests and sovereign clouds).
	TokenURL string
	Scope    string
	APIBase  string
	Timeout  time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("RG_HOST", "0.0.0.0"),
			Port:            getEnv("RG_PORT", "8080"),
			ReadTimeout:     getEnvDuration("RG_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("RG_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("RG_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("RG_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:          getEnv("RG_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("RG_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("RG_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("RG_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("RG_JWT_SECRET", ""),
			AccessTTL:  getEnvDuration("RG_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTTL: getEnvDuration("RG_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		PowerBI: PowerBIConfig{
			ClientID:     getEnv("RG_POWERBI_CLIENT_ID", ""),
			ClientSecret: getEnv("RG_POWERBI_CLIENT_SECRET", ""),
			TenantID:     getEnv("RG_POWERBI_TENANT_ID", ""),
			TokenURL:     getEnv("RG_POWERBI_TOKEN_URL", ""),
			Scope:        getEnv("RG_POWERBI_SCOPE", "https://analysis.windows.net/powerbi/api/.default"),
			APIBase:      getEnv("RG_POWERBI_API_BASE", "https://api.powerbi.com/v1.0/myorg"),
			Timeout:      getEnvDuration("RG_POWERBI_TIMEOUT", 30*time.Second),
		},
		LogLevel: getEnv("RG_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.PowerBI.ClientID == "" || c.PowerBI.ClientSecret == "" {
		return fmt.Errorf("Power BI client credentials are required")
	}
	if c.PowerBI.TenantID == "" && c.PowerBI.TokenURL == "" {
		return fmt.Errorf("Power BI tenant ID or token URL is required")
	}
	return nil
}

// TokenEndpoint returns the effective identity endpoint URL.
func (c *PowerBIConfig) TokenEndpoint() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.TenantID)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
