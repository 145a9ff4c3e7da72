package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/blazewatch/internal/channel"
	"github.com/good-yellow-bee/blazewatch/internal/client"
	"github.com/good-yellow-bee/blazewatch/internal/poller"
	"github.com/good-yellow-bee/blazewatch/internal/reconcile"
	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

// TokenEnv names the environment variable holding the API credential.
const TokenEnv = "BLAZEWATCH_TOKEN"

// Config represents the blazewatch configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Poll    PollConfig    `yaml:"poll"`
	Stream  StreamConfig  `yaml:"stream"`
	Session SessionConfig `yaml:"session"`
	Notify  NotifyConfig  `yaml:"notify"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig contains dashboard API settings.
type ServerConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. http://localhost:8080/api
	Token   string        `yaml:"token"`    // or $BLAZEWATCH_TOKEN
	Timeout time.Duration `yaml:"timeout"`  // per-request timeout (default: 10s)
}

// PollConfig contains snapshot poll settings.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`      // default: 3s
	MaxInFlight int           `yaml:"max_in_flight"` // default: 4
}

// StreamConfig contains push channel settings.
type StreamConfig struct {
	DialTimeout         time.Duration `yaml:"dial_timeout"`         // default: 10s
	ReconnectDelay      time.Duration `yaml:"reconnect_delay"`      // default: 2s
	MaxReconnectDelay   time.Duration `yaml:"max_reconnect_delay"`  // default: reconnect_delay
	ReconnectMultiplier float64       `yaml:"reconnect_multiplier"` // default: 1 (fixed delay)
}

// SessionConfig contains session behavior settings.
type SessionConfig struct {
	ResumeOnStart *bool `yaml:"resume_on_start"` // default: true
}

// NotifyConfig contains notification settings.
type NotifyConfig struct {
	Bell         *bool         `yaml:"bell"`          // ring the terminal bell (default: true)
	BellInterval time.Duration `yaml:"bell_interval"` // minimum time between bells (default: 1s)
	Locale       string        `yaml:"locale"`        // severity labels: en, tr (default: en)
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Address string `yaml:"address"` // empty disables the endpoint
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080/api"
	}
	if c.Server.Token == "" {
		c.Server.Token = os.Getenv(TokenEnv)
	}
	if c.Server.Timeout <= 0 {
		c.Server.Timeout = 10 * time.Second
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 3 * time.Second
	}
	if c.Poll.MaxInFlight <= 0 {
		c.Poll.MaxInFlight = 4
	}
	if c.Stream.DialTimeout <= 0 {
		c.Stream.DialTimeout = 10 * time.Second
	}
	if c.Stream.ReconnectDelay <= 0 {
		c.Stream.ReconnectDelay = 2 * time.Second
	}
	if c.Stream.MaxReconnectDelay <= 0 {
		c.Stream.MaxReconnectDelay = c.Stream.ReconnectDelay
	}
	if c.Stream.ReconnectMultiplier <= 0 {
		c.Stream.ReconnectMultiplier = 1
	}
	if c.Session.ResumeOnStart == nil {
		c.Session.ResumeOnStart = boolPtr(true)
	}
	if c.Notify.Bell == nil {
		c.Notify.Bell = boolPtr(true)
	}
	if c.Notify.BellInterval <= 0 {
		c.Notify.BellInterval = time.Second
	}
	if c.Notify.Locale == "" {
		c.Notify.Locale = "en"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must be http or https, got %q", c.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url has no host")
	}
	if c.Stream.MaxReconnectDelay < c.Stream.ReconnectDelay {
		return fmt.Errorf("stream.max_reconnect_delay must be >= stream.reconnect_delay")
	}
	if c.Stream.ReconnectMultiplier < 1 {
		return fmt.Errorf("stream.reconnect_multiplier must be >= 1")
	}
	switch c.Notify.Locale {
	case "en", "tr":
	default:
		return fmt.Errorf("notify.locale must be en or tr, got %q", c.Notify.Locale)
	}
	return nil
}

// ClientConfig returns the API client configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:   c.Server.BaseURL,
		Token:     c.Server.Token,
		Timeout:   c.Server.Timeout,
		UserAgent: config.UserAgent(),
	}
}

// ControllerConfig returns the session configuration for the given
// stream URL.
func (c *Config) ControllerConfig(streamURL string) reconcile.Config {
	return reconcile.Config{
		Channel: channel.Config{
			URL:                 streamURL,
			DialTimeout:         c.Stream.DialTimeout,
			ReconnectDelay:      c.Stream.ReconnectDelay,
			MaxReconnectDelay:   c.Stream.MaxReconnectDelay,
			ReconnectMultiplier: c.Stream.ReconnectMultiplier,
		},
		Poll: poller.Config{
			Interval:    c.Poll.Interval,
			Timeout:     c.Server.Timeout,
			MaxInFlight: c.Poll.MaxInFlight,
		},
		ResumeOnStart: *c.Session.ResumeOnStart,
	}
}

func boolPtr(v bool) *bool {
	return &v
}
