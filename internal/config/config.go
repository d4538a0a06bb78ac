// Package config loads run configuration from .codemend.yaml, environment
// variables (CODEMEND_ prefix), and defaults, in that order of precedence
// from lowest to highest. The loaded struct is passed explicitly to
// collaborator constructors at run start; nothing global mutates mid-run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all run configuration
type Config struct {
	// Model is the Anthropic model id for analysis and fix generation
	Model string `mapstructure:"model"`

	// MaxTokens bounds each model response
	// Default: 4096, Range: 256-64000
	MaxTokens int64 `mapstructure:"max_tokens"`

	// QualityTarget stops the convergence loop at this score (0 disables)
	// Default: 8, Range: 0-10
	QualityTarget int `mapstructure:"quality_target"`

	// MaxRounds caps analyze-fix-validate rounds
	// Default: 3, Range: 1-20
	MaxRounds int `mapstructure:"max_rounds"`

	// MaxFixesPerRound caps fix attempts in one round
	// Default: 10, Range: 1-50
	MaxFixesPerRound int `mapstructure:"max_fixes_per_round"`

	// RequestsPerMinute paces LLM calls (0 = unpaced)
	// Default: 30
	RequestsPerMinute int `mapstructure:"requests_per_minute"`

	// DefaultBranch is the base branch pull requests target
	DefaultBranch string `mapstructure:"default_branch"`

	// BranchPrefix prefixes auto-fix branch names
	BranchPrefix string `mapstructure:"branch_prefix"`

	// GateTimeout bounds each validation gate check
	GateTimeout time.Duration `mapstructure:"gate_timeout"`

	// HistoryPath is the run-history database location
	HistoryPath string `mapstructure:"history_path"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Model:             "", // empty defers to the ai package's env-aware default
		MaxTokens:         4096,
		QualityTarget:     8,
		MaxRounds:         3,
		MaxFixesPerRound:  10,
		RequestsPerMinute: 30,
		DefaultBranch:     "main",
		BranchPrefix:      "codemend",
		GateTimeout:       30 * time.Second,
		HistoryPath:       ".codemend/history.db",
	}
}

// Load reads configuration from the given file (or .codemend.yaml in the
// working directory when empty), layered under CODEMEND_* env overrides.
// A missing config file is not an error; the defaults carry the run.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".codemend")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CODEMEND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("model", defaults.Model)
	v.SetDefault("max_tokens", defaults.MaxTokens)
	v.SetDefault("quality_target", defaults.QualityTarget)
	v.SetDefault("max_rounds", defaults.MaxRounds)
	v.SetDefault("max_fixes_per_round", defaults.MaxFixesPerRound)
	v.SetDefault("requests_per_minute", defaults.RequestsPerMinute)
	v.SetDefault("default_branch", defaults.DefaultBranch)
	v.SetDefault("branch_prefix", defaults.BranchPrefix)
	v.SetDefault("gate_timeout", defaults.GateTimeout)
	v.SetDefault("history_path", defaults.HistoryPath)

	if err := v.ReadInConfig(); err != nil {
		// A missing file falls through to defaults + env; anything else
		// (unreadable, malformed) is a real error.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration to path as YAML so users
// have a file to edit. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	d := Default()
	// gate_timeout is written in duration syntax ("30s"), which both a
	// human editor and the loader expect.
	doc := map[string]any{
		"model":               d.Model,
		"max_tokens":          d.MaxTokens,
		"quality_target":      d.QualityTarget,
		"max_rounds":          d.MaxRounds,
		"max_fixes_per_round": d.MaxFixesPerRound,
		"requests_per_minute": d.RequestsPerMinute,
		"default_branch":      d.DefaultBranch,
		"branch_prefix":       d.BranchPrefix,
		"gate_timeout":        d.GateTimeout.String(),
		"history_path":        d.HistoryPath,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.MaxTokens < 256 || c.MaxTokens > 64000 {
		return fmt.Errorf("max_tokens must be between 256 and 64000 (got %d)", c.MaxTokens)
	}
	if c.QualityTarget < 0 || c.QualityTarget > 10 {
		return fmt.Errorf("quality_target must be between 0 and 10 (got %d)", c.QualityTarget)
	}
	if c.MaxRounds < 1 || c.MaxRounds > 20 {
		return fmt.Errorf("max_rounds must be between 1 and 20 (got %d)", c.MaxRounds)
	}
	if c.MaxFixesPerRound < 1 || c.MaxFixesPerRound > 50 {
		return fmt.Errorf("max_fixes_per_round must be between 1 and 50 (got %d)", c.MaxFixesPerRound)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative (got %d)", c.RequestsPerMinute)
	}
	if c.BranchPrefix == "" {
		return fmt.Errorf("branch_prefix cannot be empty")
	}
	if c.GateTimeout < 0 {
		return fmt.Errorf("gate_timeout cannot be negative (got %v)", c.GateTimeout)
	}
	return nil
}
