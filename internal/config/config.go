// Package config provides configuration loading and validation for the server and CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration, assembled by viper from an
// optional YAML file, INTERVIEW_PILOT_* environment variables, and CLI flags.
type Config struct {
	Debug bool `mapstructure:"debug"`
	JSON  bool `mapstructure:"json"`

	Server     ServerConfig     `mapstructure:"server"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Billing    BillingConfig    `mapstructure:"billing"`
	Session    SessionConfig    `mapstructure:"session"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LoginURL string `mapstructure:"login-url"`
}

// GatewayConfig holds settings for the remote interview service.
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base-url"`
	APIKey         string `mapstructure:"api-key"`
	TimeoutSeconds int    `mapstructure:"timeout-seconds"`
}

// Timeout returns the configured request timeout as a duration.
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL settings. An empty URL disables persistence.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// BillingConfig holds plan catalog and contact-sales settings.
type BillingConfig struct {
	PlansFile  string `mapstructure:"plans-file"`
	ContactURL string `mapstructure:"contact-url"`
}

// SessionConfig holds live-session housekeeping settings.
type SessionConfig struct {
	ReaperEnabled       bool `mapstructure:"reaper-enabled"`
	ReaperIntervalHours int  `mapstructure:"reaper-interval-hours"`
	MaxIdleHours        int  `mapstructure:"max-idle-hours"`
}

// EvaluationConfig tunes the synthetic progress ramp shown while scoring runs.
type EvaluationConfig struct {
	RampIntervalMs int `mapstructure:"ramp-interval-ms"`
	RampStep       int `mapstructure:"ramp-step"`
	RampCap        int `mapstructure:"ramp-cap"`
}

// RampInterval returns the ramp tick interval as a duration.
func (c EvaluationConfig) RampInterval() time.Duration {
	return time.Duration(c.RampIntervalMs) * time.Millisecond
}

const envPrefix = "INTERVIEW_PILOT"

// Load reads configuration into a Config. The config file is optional unless
// explicitly named; environment variables and bound flags override it.
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Conventional names used by deployment environments.
	if err := viper.BindEnv("database.url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("binding DATABASE_URL: %w", err)
	}
	if err := viper.BindEnv("gateway.api-key", "INTERVIEW_SERVICE_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding INTERVIEW_SERVICE_API_KEY: %w", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("interview-pilot")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing default config file is fine; a named one must exist.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.login-url", "/login")
	viper.SetDefault("gateway.timeout-seconds", 30)
	viper.SetDefault("billing.plans-file", "plans.yaml")
	viper.SetDefault("billing.contact-url", "mailto:sales@interviewpilot.app")
	viper.SetDefault("session.reaper-enabled", true)
	viper.SetDefault("session.reaper-interval-hours", 1)
	viper.SetDefault("session.max-idle-hours", 24)
	viper.SetDefault("evaluation.ramp-interval-ms", 350)
	viper.SetDefault("evaluation.ramp-step", 3)
	viper.SetDefault("evaluation.ramp-cap", 95)
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config error: 'server.port' out of range: %d", c.Server.Port)
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("config error: 'gateway.base-url' is required")
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: 'gateway.timeout-seconds' must be positive")
	}
	if c.Evaluation.RampStep <= 0 {
		return fmt.Errorf("config error: 'evaluation.ramp-step' must be positive")
	}
	if c.Evaluation.RampCap < 1 || c.Evaluation.RampCap > 99 {
		return fmt.Errorf("config error: 'evaluation.ramp-cap' must stay between 1 and 99")
	}
	if c.Session.ReaperEnabled && c.Session.ReaperIntervalHours < 1 {
		return fmt.Errorf("config error: 'session.reaper-interval-hours' must be at least 1")
	}
	if c.Session.MaxIdleHours < 1 {
		return fmt.Errorf("config error: 'session.max-idle-hours' must be at least 1")
	}
	return nil
}
