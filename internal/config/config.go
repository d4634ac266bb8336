// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Object store backends.
const (
	ObjectStoreMemory = "memory"
	ObjectStoreBadger = "badger"
	ObjectStoreGCS    = "gcs"
)

// Config holds all application configuration.
type Config struct {
	Port            string            `yaml:"port"`
	FrontendURL     string            `yaml:"frontend_url"`
	LogLevel        string            `yaml:"log_level"`
	DBPath          string            `yaml:"db_path"`
	InlineThreshold int               `yaml:"inline_threshold"`
	MCPEnabled      bool              `yaml:"mcp_enabled"`
	ObjectStore     ObjectStoreConfig `yaml:"object_store"`
	Compiler        CompilerConfig    `yaml:"compiler"`
	Live            LiveConfig        `yaml:"live"`
	Session         SessionConfig     `yaml:"session"`
	RateLimit       RateLimitConfig   `yaml:"rate_limit"`
	Timeout         TimeoutConfig     `yaml:"timeout"`
}

// ObjectStoreConfig selects where overflowing artifacts are written.
type ObjectStoreConfig struct {
	Backend            string `yaml:"backend"`
	BadgerPath         string `yaml:"badger_path"`
	GCSBucket          string `yaml:"gcs_bucket"`
	GCSPrefix          string `yaml:"gcs_prefix"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// CompilerConfig locates the compiler collaborator.
type CompilerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LiveConfig tunes live-notification connections.
type LiveConfig struct {
	QueueDepth   int           `yaml:"queue_depth"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// SessionConfig tunes the per-session actors.
type SessionConfig struct {
	IdleTTL      time.Duration `yaml:"idle_ttl"`
	QueueDepth   int           `yaml:"queue_depth"`
	MatchTimeout time.Duration `yaml:"match_timeout"`
}

// RateLimitConfig limits tool calls per client.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TimeoutConfig holds server-level timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration `yaml:"health_check"`
	Shutdown    time.Duration `yaml:"shutdown"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            "8080",
		LogLevel:        "info",
		DBPath:          "./data/codespace.db",
		InlineThreshold: 64 * 1024,
		MCPEnabled:      true,
		ObjectStore: ObjectStoreConfig{
			Backend:    ObjectStoreBadger,
			BadgerPath: "./data/blobs",
		},
		Compiler: CompilerConfig{Timeout: 10 * time.Second},
		Live: LiveConfig{
			QueueDepth:   32,
			WriteTimeout: 10 * time.Second,
			PingInterval: 20 * time.Second,
		},
		Session: SessionConfig{
			IdleTTL:      30 * time.Minute,
			QueueDepth:   64,
			MatchTimeout: 2 * time.Second,
		},
		RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		Timeout: TimeoutConfig{
			HealthCheck: 5 * time.Second,
			Shutdown:    10 * time.Second,
		},
	}
}

// Load reads configuration from defaults, the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.InlineThreshold = getEnvInt("INLINE_THRESHOLD", c.InlineThreshold)
	c.MCPEnabled = getEnvBool("MCP_ENABLED", c.MCPEnabled)

	c.ObjectStore.Backend = strings.ToLower(getEnv("OBJECT_STORE", c.ObjectStore.Backend))
	c.ObjectStore.BadgerPath = getEnv("BADGER_PATH", c.ObjectStore.BadgerPath)
	c.ObjectStore.GCSBucket = getEnv("GCS_BUCKET", c.ObjectStore.GCSBucket)
	c.ObjectStore.GCSPrefix = getEnv("GCS_PREFIX", c.ObjectStore.GCSPrefix)
	c.ObjectStore.GCSCredentialsFile = getEnv("GCS_CREDENTIALS_FILE", c.ObjectStore.GCSCredentialsFile)

	c.Compiler.URL = getEnv("COMPILER_URL", c.Compiler.URL)
	c.Compiler.Timeout = getEnvDuration("COMPILE_TIMEOUT", c.Compiler.Timeout)

	c.Live.QueueDepth = getEnvInt("SUBSCRIBER_QUEUE_DEPTH", c.Live.QueueDepth)
	c.Live.WriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", c.Live.WriteTimeout)
	c.Live.PingInterval = getEnvDuration("WS_PING_INTERVAL", c.Live.PingInterval)

	c.Session.IdleTTL = getEnvDuration("SESSION_IDLE_TTL", c.Session.IdleTTL)
	c.Session.QueueDepth = getEnvInt("SESSION_QUEUE_DEPTH", c.Session.QueueDepth)
	c.Session.MatchTimeout = getEnvDuration("REGEX_MATCH_TIMEOUT", c.Session.MatchTimeout)

	c.RateLimit.RPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Timeout.HealthCheck = getEnvDuration("HEALTH_CHECK_TIMEOUT", c.Timeout.HealthCheck)
	c.Timeout.Shutdown = getEnvDuration("SHUTDOWN_TIMEOUT", c.Timeout.Shutdown)
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.InlineThreshold <= 0 {
		return fmt.Errorf("INLINE_THRESHOLD must be > 0")
	}
	switch c.ObjectStore.Backend {
	case ObjectStoreMemory:
	case ObjectStoreBadger:
		if c.ObjectStore.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH cannot be empty when OBJECT_STORE=badger")
		}
	case ObjectStoreGCS:
		if c.ObjectStore.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET cannot be empty when OBJECT_STORE=gcs")
		}
	default:
		return fmt.Errorf("OBJECT_STORE must be one of memory, badger, gcs; got %q", c.ObjectStore.Backend)
	}
	if c.Compiler.Timeout <= 0 {
		return fmt.Errorf("COMPILE_TIMEOUT must be > 0")
	}
	if c.Live.QueueDepth <= 0 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_DEPTH must be > 0")
	}
	if c.Live.WriteTimeout <= 0 || c.Live.PingInterval <= 0 {
		return fmt.Errorf("WS_WRITE_TIMEOUT and WS_PING_INTERVAL must be > 0")
	}
	if c.Session.QueueDepth <= 0 {
		return fmt.Errorf("SESSION_QUEUE_DEPTH must be > 0")
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
