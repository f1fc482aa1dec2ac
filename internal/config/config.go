package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LocalEnvFile is loaded, when present, before the environment is read.
// Variables already set in the environment win.
const LocalEnvFile = "config/local.env"

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Security  SecurityConfig
	CORS      CORSConfig
	Logging   LoggingConfig
	Uploads   UploadConfig
	RateLimit RateLimitConfig

	// BootstrapDemo seeds a demo account with a few songs on startup.
	BootstrapDemo bool
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string // Full PostgreSQL URL
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// UploadConfig controls where cover images live and how large they may be.
type UploadConfig struct {
	Dir           string
	CoverMaxBytes int64
}

// RateLimitConfig throttles the login and register endpoints per client.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// Load reads configuration from the environment after applying LocalEnvFile.
func Load() (*Config, error) {
	_ = godotenv.Load(LocalEnvFile)
	return FromEnv()
}

// LoadDatabase reads only the database settings, for tools that do not serve
// HTTP.
func LoadDatabase() (DatabaseConfig, error) {
	_ = godotenv.Load(LocalEnvFile)

	var c Config
	if err := c.loadDatabase(); err != nil {
		return DatabaseConfig{}, err
	}
	if c.Database.URL == "" {
		return DatabaseConfig{}, errors.New("DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}
	return c.Database, nil
}

// FromEnv reads configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var problems []string

	collect := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	collect(cfg.loadDatabase())
	collect(cfg.loadServer())
	collect(cfg.loadSecurity())
	cfg.loadCORS()
	cfg.loadLogging()
	collect(cfg.loadUploads())
	collect(cfg.loadRateLimit())

	demo, err := envBool("BOOTSTRAP_DEMO", false)
	collect(err)
	cfg.BootstrapDemo = demo

	if len(problems) > 0 {
		return nil, fmt.Errorf("load config:\n  - %s", strings.Join(problems, "\n  - "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadDatabase() error {
	c.Database.URL = os.Getenv("DATABASE_URL")
	if c.Database.URL != "" {
		return nil
	}

	c.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
	c.Database.User = os.Getenv("DB_USER")
	c.Database.Password = os.Getenv("DB_PASSWORD")
	c.Database.Name = os.Getenv("DB_NAME")
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	c.Database.Port = port

	if c.Database.Host != "" && c.Database.User != "" && c.Database.Name != "" {
		c.Database.URL = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			c.Database.User,
			c.Database.Password,
			c.Database.Host,
			c.Database.Port,
			c.Database.Name,
			c.Database.SSLMode,
		)
	}
	return nil
}

func (c *Config) loadServer() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	c.Server.Port = port
	c.Server.Host = getEnvOrDefault("HOST", "0.0.0.0")
	return nil
}

func (c *Config) loadSecurity() error {
	c.Security.JWTSecret = os.Getenv("JWT_SECRET")

	ttl, err := time.ParseDuration(getEnvOrDefault("TOKEN_TTL", "24h"))
	if err != nil {
		return fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	c.Security.TokenTTL = ttl
	return nil
}

func (c *Config) loadCORS() {
	var origins []string
	for _, origin := range strings.Split(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.CORS.AllowedOrigins = origins
}

func (c *Config) loadLogging() {
	c.Logging.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	c.Logging.Format = strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
}

func (c *Config) loadUploads() error {
	c.Uploads.Dir = getEnvOrDefault("UPLOAD_DIR", "./uploads")

	size, err := strconv.ParseInt(getEnvOrDefault("COVER_MAX_BYTES", "5242880"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid COVER_MAX_BYTES: %w", err)
	}
	c.Uploads.CoverMaxBytes = size
	return nil
}

func (c *Config) loadRateLimit() error {
	perSecond, err := strconv.ParseFloat(getEnvOrDefault("AUTH_RATE_LIMIT", "1"), 64)
	if err != nil {
		return fmt.Errorf("invalid AUTH_RATE_LIMIT: %w", err)
	}
	burst, err := strconv.Atoi(getEnvOrDefault("AUTH_RATE_BURST", "5"))
	if err != nil {
		return fmt.Errorf("invalid AUTH_RATE_BURST: %w", err)
	}
	c.RateLimit.PerSecond = perSecond
	c.RateLimit.Burst = burst
	return nil
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var problems []string

	if c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}

	if c.Security.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET is required")
	} else if len(c.Security.JWTSecret) < 16 {
		problems = append(problems, "JWT_SECRET must be at least 16 characters")
	}
	if c.Security.TokenTTL <= 0 {
		problems = append(problems, "TOKEN_TTL must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "PORT must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, "LOG_FORMAT must be one of: json, text")
	}

	if strings.TrimSpace(c.Uploads.Dir) == "" {
		problems = append(problems, "UPLOAD_DIR must not be empty")
	}
	if c.Uploads.CoverMaxBytes <= 0 {
		problems = append(problems, "COVER_MAX_BYTES must be positive")
	}

	if c.RateLimit.PerSecond <= 0 {
		problems = append(problems, "AUTH_RATE_LIMIT must be positive")
	}
	if c.RateLimit.Burst < 1 {
		problems = append(problems, "AUTH_RATE_BURST must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
