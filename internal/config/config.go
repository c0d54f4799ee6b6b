package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string         `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration  `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string         `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	LogFormat         string         `mapstructure:"log_format" yaml:"log_format" validate:"omitempty,oneof=console json"`
	Database          DatabaseConfig `mapstructure:"database" yaml:"database"`
	Relay             RelayConfig    `mapstructure:"relay" yaml:"relay"`
	Auth              AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Metrics           MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// DatabaseConfig selects and locates the message store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required_if=Driver sqlite"`
	URL    string `mapstructure:"url" yaml:"url" validate:"required_if=Driver postgres"`
}

// RelayConfig tunes the collaboration relay.
type RelayConfig struct {
	Path                 string        `mapstructure:"path" yaml:"path" validate:"required,startswith=/"`
	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval" validate:"gt=0"`
	PersistTimeout       time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout" validate:"gt=0"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	SendQueueSize        int           `mapstructure:"send_queue_size" yaml:"send_queue_size" validate:"gt=0"`
	MaxFrameBytes        int64         `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes" validate:"gt=0"`
	FrameRateLimit       int           `mapstructure:"frame_rate_limit" yaml:"frame_rate_limit" validate:"gte=0"`
	RejectedSubprotocols []string      `mapstructure:"rejected_subprotocols" yaml:"rejected_subprotocols"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// AuthConfig configures verification of identity tokens.
type AuthConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required_if=Enabled true"`
	Issuer       string        `mapstructure:"issuer" yaml:"issuer"`
	Audience     string        `mapstructure:"audience" yaml:"audience"`
	TokenTTL     time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
	AllowedRoles []string      `mapstructure:"allowed_roles" yaml:"allowed_roles"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" validate:"required_if=Enabled true"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "caserelay.db",
		},
		Relay: RelayConfig{
			Path:                 "/ws",
			PingInterval:         30 * time.Second,
			PersistTimeout:       10 * time.Second,
			WriteTimeout:         10 * time.Second,
			SendQueueSize:        32,
			MaxFrameBytes:        64 << 10,
			RejectedSubprotocols: []string{"vite-hmr"},
		},
		Auth: AuthConfig{
			JWTSecret:    "dev-secret-change-me",
			Issuer:       "caserelay",
			Audience:     "caserelay",
			TokenTTL:     24 * time.Hour,
			AllowedRoles: []string{"doctor"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
