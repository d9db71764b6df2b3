// Package config holds the solver's configuration, loaded from a YAML file
// and overlaid with the CLI flags of spec §6 and environment overrides,
// adapted from the teacher's internal/config/config.go Load/Save/defaults
// pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every solver-session setting: the CLI surface of spec §6
// plus the plugin-discovery and logging knobs needed to run headless.
type Config struct {
	Verbose int `yaml:"verbose"`

	Filter     []string `yaml:"filter"`
	FirstModel bool     `yaml:"first_model"`
	NoFacts    bool     `yaml:"no_facts"`
	MaxModels  int      `yaml:"max_models"`

	Solver      string `yaml:"solver"` // "internal" or "clasp"
	ClaspConfig string `yaml:"clasp_config"`

	// ClaspDeferMS/ClaspDeferN are the external propagator's deferred-
	// schedule knobs (spec §4.7), named after the CLI flags even though
	// they govern the internal backend regardless of --solver.
	ClaspDeferMS int `yaml:"clasp_defer_ms"`
	ClaspDeferN  int `yaml:"clasp_defer_n"`

	IntegrateNextOpt bool `yaml:"integrate_next_opt"`

	ExplanationAtoms []string `yaml:"explanation_atoms"`

	PluginPath []string `yaml:"plugin_path"`

	Benchmark bool `yaml:"benchmark"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures the zap logger (internal/logging).
type LoggingConfig struct {
	Level string `yaml:"level"` // debug/info/warn/error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the solver's out-of-the-box defaults.
func DefaultConfig() *Config {
	return &Config{
		Verbose:      0,
		FirstModel:   false,
		NoFacts:      false,
		MaxModels:    0,
		Solver:       "internal",
		ClaspConfig:  "frumpy",
		ClaspDeferMS: 30,
		ClaspDeferN:  5,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file at path, falling back to DefaultConfig if
// the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides seeds PluginPath from DLVHEX_PLUGIN_PATH (spec §6's
// "Environment" subsection), supplementing --pluginpath rather than
// replacing it.
func (c *Config) applyEnvOverrides() {
	if p := os.Getenv("DLVHEX_PLUGIN_PATH"); p != "" {
		c.PluginPath = append(c.PluginPath, strings.Split(p, ":")...)
	}
}
