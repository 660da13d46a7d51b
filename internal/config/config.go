// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/causal-labs/internal/document"
)

// Config holds all application configuration.
type Config struct {
	Port        string        `yaml:"port"`
	FrontendURL string        `yaml:"frontend_url"`
	DBPath      string        `yaml:"db_path"`
	BackendURL  string        `yaml:"backend_url"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	LogLevel    string        `yaml:"log_level"`

	MaxRequestBodySize int64 `yaml:"max_request_body_size"`

	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	SSE        SSEConfig        `yaml:"sse"`
	Experiment ExperimentConfig `yaml:"experiment"`
}

// RateLimitConfig limits run approvals per user.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// SSEConfig tunes the state event stream.
type SSEConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

// ExperimentConfig tunes runs and dashboard documents.
type ExperimentConfig struct {
	// Steps is the step list new dashboards start with.
	Steps []string `yaml:"steps"`
	// StreamReadBuffer is the number of bytes asked for per transport read.
	StreamReadBuffer int `yaml:"stream_read_buffer"`
	// DataStreamSize is how many data-stream deltas are kept per document.
	DataStreamSize int `yaml:"data_stream_size"`
	// DataStreamDocuments is how many documents keep a data stream in memory.
	DataStreamDocuments int `yaml:"data_stream_documents"`
}

// Load reads configuration from environment variables, then overlays the
// YAML file named by CONFIG_FILE, if any.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "./data/experiments.db"),
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8000"),
		SessionTTL:         getEnvDuration("SESSION_TTL", 60*time.Minute),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			KeepaliveInterval: getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
			RetryDelay:        getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
		},
		Experiment: ExperimentConfig{
			Steps:               append([]string(nil), document.DefaultSteps...),
			StreamReadBuffer:    getEnvInt("STREAM_READ_BUFFER", 4096),
			DataStreamSize:      getEnvInt("DATA_STREAM_SIZE", 256),
			DataStreamDocuments: getEnvInt("DATA_STREAM_DOCUMENTS", 1024),
		},
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays a YAML file. Keys missing from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL cannot be empty")
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.Experiment.StreamReadBuffer <= 0 {
		return fmt.Errorf("STREAM_READ_BUFFER must be > 0")
	}
	if c.Experiment.DataStreamSize <= 0 {
		return fmt.Errorf("DATA_STREAM_SIZE must be > 0")
	}
	if c.Experiment.DataStreamDocuments <= 0 {
		return fmt.Errorf("DATA_STREAM_DOCUMENTS must be > 0")
	}
	if len(c.Experiment.Steps) == 0 {
		return fmt.Errorf("experiment.steps cannot be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
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
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel maps debug|info|warn|error to a slog level. Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
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
