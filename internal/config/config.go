// Package config provides configuration for the runtime layer.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config holds the runtime configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Storage
	DatabaseURL string
	ArtifactDir string

	// Failure policy; empty uses the built-in rego module.
	PolicyFile string

	// Logging
	LogLevel  string
	LogFormat string

	Context ContextConfig
	Shaper  ShaperConfig
	Persist PersistConfig
	Latency LatencyConfig
}

// ContextConfig bounds the history sent to the model.
type ContextConfig struct {
	MaxInvocations int
	TokenBudget    int
	MaxPartChars   int
}

// ShaperConfig bounds tool reply payloads.
type ShaperConfig struct {
	MaxItems        int
	MaxOutputTokens int
}

// PersistConfig tunes the background persistence worker.
type PersistConfig struct {
	IdleInterval    time.Duration
	ShutdownTimeout time.Duration
}

// LatencyConfig tunes the latency statistic.
type LatencyConfig struct {
	Alpha float64
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		HTTPPort:    8080,
		DatabaseURL: "file:data/mmvn_runner.sqlite3?_busy_timeout=5000",
		ArtifactDir: "artifacts",
		LogLevel:    "info",
		LogFormat:   "json",
		Context: ContextConfig{
			MaxInvocations: 5,
			TokenBudget:    3000,
			MaxPartChars:   2000,
		},
		Shaper: ShaperConfig{
			MaxItems:        10,
			MaxOutputTokens: 500,
		},
		Persist: PersistConfig{
			IdleInterval:    100 * time.Millisecond,
			ShutdownTimeout: 10 * time.Second,
		},
		Latency: LatencyConfig{
			Alpha: 0.3,
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
// Keys map to environment variables by upper-casing and replacing dots with
// underscores, e.g. context.token_budget is CONTEXT_TOKEN_BUDGET. Values that
// cannot be parsed fall back to their defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	def := Default()
	v.SetDefault("http_port", def.HTTPPort)
	v.SetDefault("database_url", def.DatabaseURL)
	v.SetDefault("artifact_dir", def.ArtifactDir)
	v.SetDefault("policy_file", def.PolicyFile)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("context.max_invocations", def.Context.MaxInvocations)
	v.SetDefault("context.token_budget", def.Context.TokenBudget)
	v.SetDefault("context.max_part_chars", def.Context.MaxPartChars)
	v.SetDefault("shaper.max_items", def.Shaper.MaxItems)
	v.SetDefault("shaper.max_output_tokens", def.Shaper.MaxOutputTokens)
	v.SetDefault("persist.idle_interval", def.Persist.IdleInterval)
	v.SetDefault("persist.shutdown_timeout", def.Persist.ShutdownTimeout)
	v.SetDefault("latency.alpha", def.Latency.Alpha)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:    v.GetInt("http_port"),
		DatabaseURL: v.GetString("database_url"),
		ArtifactDir: v.GetString("artifact_dir"),
		PolicyFile:  v.GetString("policy_file"),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
		Context: ContextConfig{
			MaxInvocations: intOr(v.Get("context.max_invocations"), def.Context.MaxInvocations),
			TokenBudget:    v.GetInt("context.token_budget"),
			MaxPartChars:   v.GetInt("context.max_part_chars"),
		},
		Shaper: ShaperConfig{
			MaxItems:        v.GetInt("shaper.max_items"),
			MaxOutputTokens: v.GetInt("shaper.max_output_tokens"),
		},
		Persist: PersistConfig{
			IdleInterval:    v.GetDuration("persist.idle_interval"),
			ShutdownTimeout: v.GetDuration("persist.shutdown_timeout"),
		},
		Latency: LatencyConfig{
			Alpha: v.GetFloat64("latency.alpha"),
		},
	}
	cfg.normalize(def)
	return cfg, nil
}

// intOr converts raw to an int, or returns fallback when it does not parse.
// Zero and negative numbers are valid values.
func intOr(raw any, fallback int) int {
	n, err := cast.ToIntE(raw)
	if err != nil {
		return fallback
	}
	return n
}

// normalize replaces unusable values with defaults. MaxInvocations may be
// zero or negative, which keeps every invocation; it is checked at parse time.
func (c *Config) normalize(def *Config) {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		c.HTTPPort = def.HTTPPort
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = def.DatabaseURL
	}
	if c.ArtifactDir == "" {
		c.ArtifactDir = def.ArtifactDir
	}
	if c.Context.TokenBudget <= 0 {
		c.Context.TokenBudget = def.Context.TokenBudget
	}
	if c.Context.MaxPartChars <= 0 {
		c.Context.MaxPartChars = def.Context.MaxPartChars
	}
	if c.Shaper.MaxItems <= 0 {
		c.Shaper.MaxItems = def.Shaper.MaxItems
	}
	if c.Shaper.MaxOutputTokens <= 0 {
		c.Shaper.MaxOutputTokens = def.Shaper.MaxOutputTokens
	}
	if c.Persist.IdleInterval <= 0 {
		c.Persist.IdleInterval = def.Persist.IdleInterval
	}
	if c.Persist.ShutdownTimeout <= 0 {
		c.Persist.ShutdownTimeout = def.Persist.ShutdownTimeout
	}
	if c.Latency.Alpha <= 0 || c.Latency.Alpha > 1 {
		c.Latency.Alpha = def.Latency.Alpha
	}
}
