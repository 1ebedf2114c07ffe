/*
PURPOSE:
  Overlays HALOSPEC_* environment variables onto a loaded Config.

REQUIREMENTS:
  Implementation-discovered:
  - Containers and CI set knobs through the environment, not files.
  - Nested keys map with "_" (adaptive.decrease_step -> HALOSPEC_ADAPTIVE_DECREASE_STEP).
  - A malformed value must fail loudly rather than silently become 0.

ARCHITECTURE INTEGRATION:
  - Called by: config.Load()
  - Dependencies: github.com/spf13/viper

ERROR HANDLING:
  - Returns the first malformed variable, wrapped in ErrInvalidConfig.

RELATED FILES:
  - internal/config/config.go
*/

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. HALOSPEC_STEPS
// or HALOSPEC_LOAD_ENABLED.
const EnvPrefix = "halospec"

// ApplyEnv overlays HALOSPEC_* environment variables onto cfg. Only variables
// that are set take effect. A value that does not parse for its key yields an
// error wrapping ErrInvalidConfig.
func ApplyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	e := envReader{v: v}

	e.setString("url", &cfg.URL)
	e.setString("model", &cfg.Model)
	e.setString("system_prompt", &cfg.SystemPrompt)
	e.setString("prompt", &cfg.Prompt)
	e.setInt("max_tokens", &cfg.MaxTokens)
	e.setString("output_dir", &cfg.OutputDir)
	e.setString("output_file", &cfg.OutputFile)
	e.setString("summary_file", &cfg.SummaryFile)
	e.setInt("steps", &cfg.Steps)
	e.setInt("warmup_steps", &cfg.WarmupSteps)
	e.setInt("max_attempts", &cfg.MaxAttempts)
	e.setInt("convergence_window", &cfg.ConvergenceWindow)
	e.setString("metrics_addr", &cfg.MetricsAddr)

	e.setDuration("cooldown", &cfg.Cooldown)
	e.setDuration("request_timeout", &cfg.RequestTimeout)
	e.setDuration("initial_backoff", &cfg.InitialBackoff)
	e.setIntList("fixed_draft_lengths", &cfg.FixedDraftLengths)

	e.setBool("adaptive.enabled", &cfg.Adaptive.Enabled)
	e.setInt("adaptive.decrease_step", &cfg.Adaptive.DecreaseStep)
	e.setBool("adaptive.reset_ema_on_failure", &cfg.Adaptive.ResetEMAOnFailure)

	e.setBool("load.enabled", &cfg.Load.Enabled)
	e.setInt("load.trigger_step", &cfg.Load.TriggerStep)
	e.setInt("load.workers", &cfg.Load.Workers)
	e.setDuration("load.duration", &cfg.Load.Duration)

	return e.err
}

// envReader parses set keys and keeps the first failure.
type envReader struct {
	v   *viper.Viper
	err error
}

// raw returns the value of key when it is set and no earlier key failed.
func (e *envReader) raw(key string) (string, bool) {
	if e.err != nil || !e.v.IsSet(key) {
		return "", false
	}
	return e.v.GetString(key), true
}

func (e *envReader) fail(key, val string, err error) {
	name := strings.ToUpper(EnvPrefix + "_" + strings.ReplaceAll(key, ".", "_"))
	e.err = fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, name, val, err)
}

func (e *envReader) setString(key string, dst *string) {
	if s, ok := e.raw(key); ok {
		*dst = s
	}
}

func (e *envReader) setInt(key string, dst *int) {
	s, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		e.fail(key, s, err)
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	s, ok := e.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		e.fail(key, s, err)
		return
	}
	*dst = b
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	s, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		e.fail(key, s, err)
		return
	}
	*dst = d
}

func (e *envReader) setIntList(key string, dst *[]int) {
	s, ok := e.raw(key)
	if !ok {
		return
	}
	lengths, err := parseIntList(s)
	if err != nil {
		e.fail(key, s, err)
		return
	}
	*dst = lengths
}

// parseIntList parses "1,2,4" style lists.
func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("bad list element %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}
