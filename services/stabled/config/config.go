package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the stablecoin daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	EngineConfig  string          `yaml:"engine_config"`
	DataDir       string          `yaml:"data_dir"`
	Audit         AuditConfig     `yaml:"audit"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Oracle        OracleConfig    `yaml:"oracle"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// AuditConfig selects the journal database.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig controls bearer token verification for mutating routes.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	HMACSecret string `yaml:"hmac_secret"`
	SecretEnv  string `yaml:"hmac_secret_env"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
	ScopeClaim string `yaml:"scope_claim"`
	ClockSkew  string `yaml:"clock_skew"`

	clockSkew time.Duration
}

// RateLimitConfig throttles mutating routes per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// OracleConfig configures the submitted-price feed store.
type OracleConfig struct {
	FeedDecimals    uint8  `yaml:"feed_decimals"`
	MaxDeviationBps uint64 `yaml:"max_deviation_bps"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TelemetryConfig enables the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Metrics  bool   `yaml:"metrics"`
	Traces   bool   `yaml:"traces"`
	// SampleRatio keeps this fraction of root spans. Zero keeps all.
	SampleRatio float64 `yaml:"sample_ratio"`
}

const (
	defaultListen       = ":8085"
	defaultFeedDecimals = 8
	maxFeedDecimals     = 18
)

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.EngineConfig = strings.TrimSpace(cfg.EngineConfig)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Audit.Driver = strings.ToLower(strings.TrimSpace(cfg.Audit.Driver))
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = "sqlite"
	}
	cfg.Audit.DSN = strings.TrimSpace(cfg.Audit.DSN)
	cfg.Auth.normalize()
	if cfg.Oracle.FeedDecimals == 0 {
		cfg.Oracle.FeedDecimals = defaultFeedDecimals
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.EngineConfig == "" {
		return fmt.Errorf("engine_config is required")
	}
	switch cfg.Audit.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Audit.DSN == "" {
			return fmt.Errorf("audit: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("audit: unsupported driver %q", cfg.Audit.Driver)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if cfg.Oracle.FeedDecimals > maxFeedDecimals {
		return fmt.Errorf("oracle: feed_decimals must not exceed %d", maxFeedDecimals)
	}
	if cfg.Oracle.MaxDeviationBps > 10_000 {
		return fmt.Errorf("oracle: max_deviation_bps must not exceed 10000")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1]")
	}
	return nil
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.SecretEnv = strings.TrimSpace(cfg.SecretEnv)
	if cfg.SecretEnv != "" && strings.TrimSpace(cfg.HMACSecret) == "" {
		cfg.HMACSecret = os.Getenv(cfg.SecretEnv)
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.ScopeClaim = strings.TrimSpace(cfg.ScopeClaim)
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	cfg.ClockSkew = strings.TrimSpace(cfg.ClockSkew)
}

func (cfg *AuthConfig) validate() error {
	if cfg.ClockSkew != "" {
		skew, err := time.ParseDuration(cfg.ClockSkew)
		if err != nil {
			return fmt.Errorf("clock_skew: %w", err)
		}
		if skew < 0 {
			return fmt.Errorf("clock_skew must not be negative")
		}
		cfg.clockSkew = skew
	}
	if cfg.Enabled && cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret (or hmac_secret_env) is required when auth is enabled")
	}
	return nil
}

// ClockSkewDuration returns the parsed clock_skew, zero when unset.
func (cfg AuthConfig) ClockSkewDuration() time.Duration {
	return cfg.clockSkew
}
