package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultRetryDelay    = 5 * time.Second
	defaultTypingIdle    = 3 * time.Second
	defaultTypingExpiry  = 5 * time.Second
	defaultInvokeTimeout = 10 * time.Second
	defaultDevHubAddr    = "127.0.0.1:5080"
	defaultZipkinURL     = "http://localhost:9411/api/v2/spans"
)

// DefaultReconnectSchedule is the delay before each reconnect attempt after a
// live connection drops.
var DefaultReconnectSchedule = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Provider exposes the configuration values the chat client needs.
type Provider interface {
	GetAPIURL() string
	GetHubURL() string
	GetTokenFile() string
	GetUserID() string
	GetRetryDelay() time.Duration
	GetReconnectSchedule() []time.Duration
	GetTypingIdle() time.Duration
	GetTypingExpiry() time.Duration
	GetInvokeTimeout() time.Duration
	GetDevHubAddr() string
	GetTracingEnabled() bool
	GetZipkinURL() string
}

// Config holds all configuration for the chat client.
type Config struct {
	APIURL            string
	HubURL            string
	TokenFile         string
	UserID            string
	RetryDelay        time.Duration
	ReconnectSchedule []time.Duration
	TypingIdle        time.Duration
	TypingExpiry      time.Duration
	InvokeTimeout     time.Duration
	DevHubAddr        string
	TracingEnabled    bool
	ZipkinURL         string
}

// Compile-time interface compliance check
var _ Provider = (*Config)(nil)

// New loads configuration from environment variables, reading a .env file
// first when one is present.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		APIURL:     strings.TrimRight(os.Getenv("CHAT_API_URL"), "/"),
		HubURL:     os.Getenv("CHAT_HUB_URL"),
		TokenFile:  os.Getenv("CHAT_TOKEN_FILE"),
		UserID:     os.Getenv("CHAT_USER_ID"),
		DevHubAddr: os.Getenv("DEVHUB_ADDR"),
	}
	if cfg.DevHubAddr == "" {
		cfg.DevHubAddr = defaultDevHubAddr
	}
	if cfg.ZipkinURL = os.Getenv("CHAT_TRACING_ZIPKIN_URL"); cfg.ZipkinURL == "" {
		cfg.ZipkinURL = defaultZipkinURL
	}
	if raw := os.Getenv("CHAT_TRACING_ENABLED"); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_TRACING_ENABLED: %w", err)
		}
		cfg.TracingEnabled = enabled
	}

	var err error
	if cfg.RetryDelay, err = durationEnv("CHAT_RETRY_DELAY", defaultRetryDelay); err != nil {
		return nil, err
	}
	if cfg.TypingIdle, err = durationEnv("CHAT_TYPING_IDLE", defaultTypingIdle); err != nil {
		return nil, err
	}
	if cfg.TypingExpiry, err = durationEnv("CHAT_TYPING_EXPIRY", defaultTypingExpiry); err != nil {
		return nil, err
	}
	if cfg.InvokeTimeout, err = durationEnv("CHAT_INVOKE_TIMEOUT", defaultInvokeTimeout); err != nil {
		return nil, err
	}
	if cfg.ReconnectSchedule, err = ParseSchedule(os.Getenv("CHAT_RECONNECT_SCHEDULE")); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first missing setting required to run a session.
func (c *Config) Validate() error {
	if c.APIURL == "" || c.HubURL == "" {
		return fmt.Errorf("required environment variables CHAT_API_URL or CHAT_HUB_URL are not set")
	}
	if c.UserID == "" {
		return fmt.Errorf("required environment variable CHAT_USER_ID is not set")
	}
	return nil
}

// ParseSchedule parses a comma separated list of durations. An empty string
// yields DefaultReconnectSchedule.
func ParseSchedule(raw string) ([]time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		out := make([]time.Duration, len(DefaultReconnectSchedule))
		copy(out, DefaultReconnectSchedule)
		return out, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid CHAT_RECONNECT_SCHEDULE entry %q: %w", p, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid CHAT_RECONNECT_SCHEDULE entry %q: negative delay", p)
		}
		out = append(out, d)
	}
	return out, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) GetAPIURL() string                     { return c.APIURL }
func (c *Config) GetHubURL() string                     { return c.HubURL }
func (c *Config) GetTokenFile() string                  { return c.TokenFile }
func (c *Config) GetUserID() string                     { return c.UserID }
func (c *Config) GetRetryDelay() time.Duration          { return c.RetryDelay }
func (c *Config) GetReconnectSchedule() []time.Duration { return c.ReconnectSchedule }
func (c *Config) GetTypingIdle() time.Duration          { return c.TypingIdle }
func (c *Config) GetTypingExpiry() time.Duration        { return c.TypingExpiry }
func (c *Config) GetInvokeTimeout() time.Duration       { return c.InvokeTimeout }
func (c *Config) GetDevHubAddr() string                 { return c.DevHubAddr }
func (c *Config) GetTracingEnabled() bool               { return c.TracingEnabled }
func (c *Config) GetZipkinURL() string                  { return c.ZipkinURL }
