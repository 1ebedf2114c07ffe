/*
PURPOSE:
  Defines the configuration structure and loading logic for HaloSpec Bench.
  Adheres to "Config IS Code" philosophy.

REQUIREMENTS:
  User-specified:
  - Allow configuration of the target URL, model, prompt, step counts,
    the fixed draft-length sweep and the adaptive policy constants.
  - Allow background load injection to be switched on and scheduled.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs to support Environment variables overrides (HALOSPEC_...), see env.go.
  - The high-latency decrement and the EMA-reset-on-failure behaviour vary
    between deployments, so both are tunables rather than constants.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3 (standard for Go config), github.com/spf13/viper (env)

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files fall back to DefaultConfig().
  - Validate() and malformed HALOSPEC_* variables wrap ErrInvalidConfig.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults should be sensible (e.g., 60s timeout, 400ms backoff).

USAGE:
  cfg, err := config.Load("halospec.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct, DefaultConfig(), env.go and Validate().

RELATED FILES:
  - internal/cli/root.go
  - internal/config/env.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the full configuration for HaloSpec Bench.
type Config struct {
	URL          string   `yaml:"url"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Prompt       string   `yaml:"prompt"`
	MaxTokens    int      `yaml:"max_tokens"`
	Stop         []string `yaml:"stop"`

	OutputDir   string `yaml:"output_dir"`
	OutputFile  string `yaml:"output_file"`
	SummaryFile string `yaml:"summary_file"`

	Steps          int           `yaml:"steps"`
	WarmupSteps    int           `yaml:"warmup_steps"`
	Cooldown       time.Duration `yaml:"cooldown"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// FixedDraftLengths is the sweep of constant modes, each run as "fixed_N".
	FixedDraftLengths []int         `yaml:"fixed_draft_lengths"`
	Adaptive          Adaptive      `yaml:"adaptive"`
	Load              LoadInjection `yaml:"load"`

	// ConvergenceWindow is the k used for the adaptive convergence step.
	ConvergenceWindow int    `yaml:"convergence_window"`
	MetricsAddr       string `yaml:"metrics_addr"`
}

// Adaptive holds the adaptive controller constants.
type Adaptive struct {
	Enabled           bool          `yaml:"enabled"`
	WarmupDraftLength int           `yaml:"warmup_draft_length"`
	EMAAlpha          float64       `yaml:"ema_alpha"`
	LowFactor         float64       `yaml:"low_factor"`
	HighFactor        float64       `yaml:"high_factor"`
	DefaultLow        time.Duration `yaml:"default_low"`
	DefaultHigh       time.Duration `yaml:"default_high"`
	DecreaseStep      int           `yaml:"decrease_step"`
	ExploreCeiling    int           `yaml:"explore_ceiling"`
	ResetEMAOnFailure bool          `yaml:"reset_ema_on_failure"`
}

// LoadInjection configures background CPU contention during the adaptive run.
type LoadInjection struct {
	Enabled     bool          `yaml:"enabled"`
	TriggerStep int           `yaml:"trigger_step"`
	Duration    time.Duration `yaml:"duration"`
	Workers     int           `yaml:"workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		URL:          "http://localhost:8000/api/v1/chat/completions",
		Model:        "Qwen3-0.6B-GGUF",
		SystemPrompt: "You are a concise assistant. Answer in one sentence.",
		Prompt:       "Explain speculative decoding in one sentence.",
		MaxTokens:    64,
		Stop:         []string{"\n\n"},

		OutputDir:   ".",
		OutputFile:  "results_phase0.csv",
		SummaryFile: "mode_summaries.jsonl",

		Steps:          30,
		WarmupSteps:    5,
		Cooldown:       2 * time.Second,
		RequestTimeout: 60 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 400 * time.Millisecond,

		FixedDraftLengths: []int{1, 2, 4, 8},
		Adaptive: Adaptive{
			Enabled:           true,
			WarmupDraftLength: 4,
			EMAAlpha:          0.4,
			LowFactor:         0.85,
			HighFactor:        1.05,
			DefaultLow:        9 * time.Second,
			DefaultHigh:       22 * time.Second,
			DecreaseStep:      1,
			ExploreCeiling:    6,
		},
		Load: LoadInjection{
			Enabled:     false,
			TriggerStep: 10,
			Duration:    30 * time.Second,
			Workers:     1,
		},
		ConvergenceWindow: 5,
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches for default files in order.
// If no file found, returns default config.
// Environment overrides are applied last in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		defaults := []string{"halospec.yaml", "halospec.yml", "bench.yaml"}
		for _, name := range defaults {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the engine relies on.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.Steps < 1 {
		return fmt.Errorf("%w: steps must be >= 1, got %d", ErrInvalidConfig, c.Steps)
	}
	if c.WarmupSteps < 0 {
		return fmt.Errorf("%w: warmup_steps must be >= 0", ErrInvalidConfig)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1", ErrInvalidConfig)
	}
	for _, d := range c.FixedDraftLengths {
		if d < 1 || d > 8 {
			return fmt.Errorf("%w: fixed draft length %d outside [1,8]", ErrInvalidConfig, d)
		}
	}
	if len(c.FixedDraftLengths) == 0 && !c.Adaptive.Enabled {
		return fmt.Errorf("%w: nothing to run (no fixed draft lengths and adaptive disabled)", ErrInvalidConfig)
	}
	a := c.Adaptive
	if a.WarmupDraftLength < 1 || a.WarmupDraftLength > 8 {
		return fmt.Errorf("%w: adaptive.warmup_draft_length outside [1,8]", ErrInvalidConfig)
	}
	if a.EMAAlpha <= 0 || a.EMAAlpha > 1 {
		return fmt.Errorf("%w: adaptive.ema_alpha must be in (0,1]", ErrInvalidConfig)
	}
	if a.DecreaseStep < 1 || a.DecreaseStep > 7 {
		return fmt.Errorf("%w: adaptive.decrease_step must be in [1,7]", ErrInvalidConfig)
	}
	if a.DefaultLow > a.DefaultHigh {
		return fmt.Errorf("%w: adaptive.default_low exceeds default_high", ErrInvalidConfig)
	}
	if c.Load.Enabled {
		if c.Load.TriggerStep < 1 || c.Load.TriggerStep > c.Steps {
			return fmt.Errorf("%w: load.trigger_step must be in [1,%d]", ErrInvalidConfig, c.Steps)
		}
		if c.Load.Duration <= 0 {
			return fmt.Errorf("%w: load.duration must be positive", ErrInvalidConfig)
		}
	}
	if c.ConvergenceWindow < 1 {
		return fmt.Errorf("%w: convergence_window must be >= 1", ErrInvalidConfig)
	}
	return nil
}
