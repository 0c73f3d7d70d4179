// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     config
// Description: TOML configuration with defaults and environment expansion
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvVar names the environment variable pointing at the config file
const EnvVar = "WIENER_CONFIG"

// Config holds the complete application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Engine    EngineConfig    `toml:"engine"`
	Providers []ProviderWant  `toml:"providers"`
	HTTP      HTTPConfig      `toml:"http"`
	Provider  ProviderConfig  `toml:"provider"`
	Store     StoreConfig     `toml:"store"`
	Planner   PlannerConfig   `toml:"planner"`
	Logging   LoggingConfig   `toml:"logging"`
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	Name       string `toml:"name"`
	Actor      string `toml:"actor"`
	DataDir    string `toml:"data_dir"`
	ScriptsDir string `toml:"scripts_dir"`
}

// EngineConfig holds interpreter and orchestrator settings
type EngineConfig struct {
	CycleBudget    Duration `toml:"cycle_budget"`
	Sleep          bool     `toml:"sleep"`
	MaxSteps       int      `toml:"max_steps"`
	UpdateInterval Duration `toml:"update_interval"`
	InvokeTimeout  Duration `toml:"invoke_timeout"`
	HotReload      bool     `toml:"hot_reload"`
	// Forbid lists actions the policy refuses to run
	Forbid []string `toml:"forbid"`
	// ForbidStates lists facts no action may bring about
	ForbidStates []string `toml:"forbid_states"`
	Goals        []string `toml:"goals"`
}

// ProviderWant declares a provider type (and optionally name) to connect to
type ProviderWant struct {
	Type     string `toml:"type"`
	Name     string `toml:"name"`
	Priority int    `toml:"priority"`
}

// HTTPConfig holds the control API settings
type HTTPConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
	// ProviderTTL expires providers that stop sending heartbeats
	ProviderTTL Duration `toml:"provider_ttl"`
}

// ProviderConfig holds settings for running this binary as a provider
type ProviderConfig struct {
	Type       string   `toml:"type"`
	Name       string   `toml:"name"`
	Host       string   `toml:"host"`
	Port       int      `toml:"port"`
	Controller string   `toml:"controller"`
	Heartbeat  Duration `toml:"heartbeat"`
}

// StoreConfig holds the goal history settings
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// PlannerConfig selects the planner
type PlannerConfig struct {
	// Kind is "pabt", "redis" or "none"
	Kind         string `toml:"kind"`
	MaxTicks     int    `toml:"max_ticks"`
	RedisURL     string `toml:"redis_url"`
	GoalKey      string `toml:"goal_key"`
	StateChannel string `toml:"state_channel"`
	PlanKey      string `toml:"plan_key"`
}

// LoggingConfig holds log settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Caller bool   `toml:"caller"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.expandEnvVars()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by WIENER_CONFIG or the first default
// location that exists. Without any file it returns the defaults.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvVar); path != "" {
		return Load(path)
	}
	defaultPaths := []string{
		"./configs/wiener.toml",
		"./wiener.toml",
		filepath.Join(os.Getenv("HOME"), ".config/wiener/wiener.toml"),
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return Default(), nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "wiener"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = "./data"
	}
	if c.General.ScriptsDir == "" {
		c.General.ScriptsDir = "./scripts"
	}

	// Engine
	if c.Engine.CycleBudget.Duration == 0 {
		c.Engine.CycleBudget.Duration = 100 * time.Millisecond
	}
	if c.Engine.UpdateInterval.Duration == 0 {
		c.Engine.UpdateInterval.Duration = 250 * time.Millisecond
	}
	if c.Engine.InvokeTimeout.Duration == 0 {
		c.Engine.InvokeTimeout.Duration = 10 * time.Second
	}

	// Providers
	for i := range c.Providers {
		if c.Providers[i].Priority == 0 {
			c.Providers[i].Priority = 1
		}
	}

	// HTTP
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8600
	}
	if c.HTTP.ReadTimeout.Duration == 0 {
		c.HTTP.ReadTimeout.Duration = 30 * time.Second
	}
	if c.HTTP.WriteTimeout.Duration == 0 {
		c.HTTP.WriteTimeout.Duration = 30 * time.Second
	}
	if c.HTTP.ProviderTTL.Duration == 0 {
		c.HTTP.ProviderTTL.Duration = 30 * time.Second
	}

	// Provider
	if c.Provider.Type == "" {
		c.Provider.Type = "speech"
	}
	if c.Provider.Host == "" {
		c.Provider.Host = "localhost"
	}
	if c.Provider.Port == 0 {
		c.Provider.Port = 9300
	}
	if c.Provider.Controller == "" {
		c.Provider.Controller = "http://localhost:8600"
	}
	if c.Provider.Heartbeat.Duration == 0 {
		c.Provider.Heartbeat.Duration = 10 * time.Second
	}

	// Store
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.General.DataDir, "wiener.db")
	}

	// Planner
	if c.Planner.Kind == "" {
		c.Planner.Kind = "pabt"
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate rejects settings the components cannot run with
func (c *Config) Validate() error {
	switch c.Planner.Kind {
	case "pabt", "none":
	case "redis":
		if c.Planner.RedisURL == "" {
			return fmt.Errorf("planner.redis_url is required for the redis planner")
		}
	default:
		return fmt.Errorf("unknown planner kind %q", c.Planner.Kind)
	}
	for _, w := range c.Providers {
		if w.Type == "" {
			return fmt.Errorf("providers entry without type")
		}
	}
	if c.Engine.CycleBudget.Duration < 0 {
		return fmt.Errorf("engine.cycle_budget must not be negative")
	}
	return nil
}

// expandEnvVars expands environment variables in configuration values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.General.ScriptsDir = os.ExpandEnv(c.General.ScriptsDir)
	c.Store.Path = os.ExpandEnv(c.Store.Path)
	c.Planner.RedisURL = os.ExpandEnv(c.Planner.RedisURL)
	c.Provider.Controller = os.ExpandEnv(c.Provider.Controller)
}

// HTTPAddress returns host:port of the control API
func (c *Config) HTTPAddress() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}
