package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/haldis/idlewatch/internal/extractor"
	"github.com/haldis/idlewatch/internal/logger"
)

// Environment overrides honored after the TOML file is read. They exist for
// container deployments where mounting a config file is overkill.
const (
	EnvHeadlessContainer = "HEADLESS_CONTAINER_NAME"
	EnvServerContainer   = "SERVER_CONTAINER_NAME"
	EnvShutdownDelay     = "SHUTDOWN_DELAY"
)

// Config is the top-level TOML structure.
type Config struct {
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Docker  DockerConfig  `toml:"docker" mapstructure:"docker"`
	Probe   ProbeConfig   `toml:"probe" mapstructure:"probe"`
	Rules   []RuleConfig  `toml:"rules" mapstructure:"rules"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type MonitorConfig struct {
	Container         string        `toml:"container" mapstructure:"container"`
	SourceContainer   string        `toml:"source_container" mapstructure:"source_container"`
	ShutdownDelay     time.Duration `toml:"shutdown_delay" mapstructure:"shutdown_delay"`
	PollInterval      time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	ControllerTimeout time.Duration `toml:"controller_timeout" mapstructure:"controller_timeout"`
	MaxAttempts       int           `toml:"max_attempts" mapstructure:"max_attempts"`
	RetryBackoff      time.Duration `toml:"retry_backoff" mapstructure:"retry_backoff"`
}

type DockerConfig struct {
	// Host overrides the environment-derived daemon address (DOCKER_HOST).
	Host        string        `toml:"host" mapstructure:"host"`
	StopTimeout time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
}

type ProbeConfig struct {
	Enabled   bool          `toml:"enabled" mapstructure:"enabled"`
	BaseURL   string        `toml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `toml:"timeout" mapstructure:"timeout"`
	VerifyTLS bool          `toml:"verify_tls" mapstructure:"verify_tls"`
}

type RuleConfig struct {
	Kind           string `toml:"kind" mapstructure:"kind"`
	Contains       string `toml:"contains" mapstructure:"contains"`
	Pattern        string `toml:"pattern" mapstructure:"pattern"`
	SessionPattern string `toml:"session_pattern" mapstructure:"session_pattern"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// Default returns a Config with the stock defaults applied.
func Default() Config {
	var c Config
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Monitor.Container == "" {
		c.Monitor.Container = "fika-headless"
	}
	if c.Monitor.SourceContainer == "" {
		c.Monitor.SourceContainer = "fika-server"
	}
	if c.Monitor.ShutdownDelay <= 0 {
		c.Monitor.ShutdownDelay = 5 * time.Minute
	}
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = 5 * time.Second
	}
	if c.Monitor.ControllerTimeout <= 0 {
		c.Monitor.ControllerTimeout = 30 * time.Second
	}
	if c.Monitor.MaxAttempts <= 0 {
		c.Monitor.MaxAttempts = 3
	}
	if c.Monitor.RetryBackoff <= 0 {
		c.Monitor.RetryBackoff = 2 * time.Second
	}
	if c.Docker.StopTimeout <= 0 {
		c.Docker.StopTimeout = 30 * time.Second
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 10 * time.Second
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8787"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Load reads a TOML file, applies environment overrides and defaults, and
// validates the result. path may be empty, in which case only env and
// defaults apply.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := v.Unmarshal(&c); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv layers the container-deployment overrides on top of file values.
// SHUTDOWN_DELAY accepts either a bare integer (seconds) or a Go duration.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvHeadlessContainer); v != "" {
		c.Monitor.Container = v
	}
	if v := os.Getenv(EnvServerContainer); v != "" {
		c.Monitor.SourceContainer = v
	}
	if v := os.Getenv(EnvShutdownDelay); v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q: %w", EnvShutdownDelay, v, err)
		}
		c.Monitor.ShutdownDelay = d
	}
	return nil
}

func parseDelay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative delay")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative delay")
	}
	return d, nil
}

// Validate rejects configs the daemon cannot act on.
func (c *Config) Validate() error {
	if c.Monitor.Container == "" {
		return fmt.Errorf("monitor.container is required")
	}
	if c.Monitor.SourceContainer == "" {
		return fmt.Errorf("monitor.source_container is required")
	}
	if c.Monitor.Container == c.Monitor.SourceContainer {
		return fmt.Errorf("monitor.container and monitor.source_container must differ")
	}
	if c.Probe.Enabled && c.Probe.BaseURL == "" {
		return fmt.Errorf("probe.base_url is required when probe.enabled")
	}
	if c.History.Enabled && c.History.DSN == "" {
		return fmt.Errorf("history.dsn is required when history.enabled")
	}
	if _, err := c.BuildRules(); err != nil {
		return err
	}
	return nil
}

// BuildRules compiles the [[rules]] table into extractor rules. An empty
// table means the stock SPT/Fika rules.
func (c *Config) BuildRules() ([]extractor.Rule, error) {
	if len(c.Rules) == 0 {
		return extractor.DefaultRules(), nil
	}
	out := make([]extractor.Rule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		kind, err := parseKind(rc.Kind)
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if rc.Contains == "" && rc.Pattern == "" {
			return nil, fmt.Errorf("rules[%d]: contains or pattern is required", i)
		}
		r := extractor.Rule{Kind: kind, Contains: rc.Contains}
		if rc.Pattern != "" {
			re, err := regexp.Compile(rc.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rules[%d]: pattern: %w", i, err)
			}
			r.Pattern = re
		}
		if rc.SessionPattern != "" {
			re, err := regexp.Compile(rc.SessionPattern)
			if err != nil {
				return nil, fmt.Errorf("rules[%d]: session_pattern: %w", i, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("rules[%d]: session_pattern needs a capture group", i)
			}
			r.SessionPattern = re
		}
		out = append(out, r)
	}
	return out, nil
}

func parseKind(s string) (extractor.Kind, error) {
	switch extractor.Kind(strings.TrimSpace(s)) {
	case extractor.KindSessionStarted:
		return extractor.KindSessionStarted, nil
	case extractor.KindSessionEnded:
		return extractor.KindSessionEnded, nil
	case extractor.KindActivity:
		return extractor.KindActivity, nil
	case extractor.KindCompanionReady:
		return extractor.KindCompanionReady, nil
	default:
		return "", fmt.Errorf("unknown rule kind %q", s)
	}
}

// LoggerConfig adapts the [log] table to the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Color:      c.Log.Color,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}
