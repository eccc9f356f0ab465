package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the relay runtime parameters.
type Config struct {
	HTTPAddress         string          `mapstructure:"http_address"`
	LogLevel            string          `mapstructure:"log_level"`
	ShutdownGracePeriod time.Duration   `mapstructure:"shutdown_grace_period"`
	Database            DatabaseConfig  `mapstructure:"database"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
	History             HistoryConfig   `mapstructure:"history"`
	WebSocket           WebSocketConfig `mapstructure:"websocket"`
}

// DatabaseConfig selects the durable store. DSN may carry credentials and
// must only ever be logged through the redactor.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// RateLimitConfig is the per-address admission quota.
type RateLimitConfig struct {
	Requests   int           `mapstructure:"requests"`
	Events     int           `mapstructure:"events"`
	Window     time.Duration `mapstructure:"window"`
	TrustProxy bool          `mapstructure:"trust_proxy"`
}

type HistoryConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type WebSocketConfig struct {
	MaxMessageBytes int64    `mapstructure:"max_message_bytes"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

const (
	defaultHTTPAddress         = ":3001"
	defaultLogLevel            = "info"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultDriver              = "sqlite3"
	defaultDSN                 = "murmur.db"
	defaultRequests            = 10
	defaultEvents              = 120
	defaultWindow              = time.Minute
	defaultHistoryLimit        = 50
	defaultHistoryMax          = 100
	defaultMaxMessageBytes     = 50 << 20
)

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with MURMUR_ and can override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MURMUR")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_address", defaultHTTPAddress)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("database.driver", defaultDriver)
	v.SetDefault("database.dsn", defaultDSN)
	v.SetDefault("rate_limit.requests", defaultRequests)
	v.SetDefault("rate_limit.events", defaultEvents)
	v.SetDefault("rate_limit.window", defaultWindow.String())
	v.SetDefault("rate_limit.trust_proxy", false)
	v.SetDefault("history.default_limit", defaultHistoryLimit)
	v.SetDefault("history.max_limit", defaultHistoryMax)
	v.SetDefault("websocket.max_message_bytes", defaultMaxMessageBytes)
	v.SetDefault("websocket.allowed_origins", []string{})

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	grace, err := time.ParseDuration(v.GetString("shutdown_grace_period"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid shutdown_grace_period: %w", err)
	}
	cfg.ShutdownGracePeriod = grace

	window, err := time.ParseDuration(v.GetString("rate_limit.window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate_limit.window: %w", err)
	}
	cfg.RateLimit.Window = window

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Events <= 0 {
		return fmt.Errorf("rate_limit quotas must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.History.MaxLimit <= 0 || c.History.DefaultLimit <= 0 || c.History.DefaultLimit > c.History.MaxLimit {
		return fmt.Errorf("history limits must satisfy 0 < default_limit <= max_limit")
	}
	if c.WebSocket.MaxMessageBytes <= 0 {
		return fmt.Errorf("websocket.max_message_bytes must be positive")
	}
	return nil
}

// Secrets lists configured values that must never appear in logs or
// responses verbatim.
func (c Config) Secrets() []string {
	return []string{c.Database.DSN}
}
