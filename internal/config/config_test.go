package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 400*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Cooldown)
	assert.Equal(t, 5, cfg.WarmupSteps)
	assert.Equal(t, 0.4, cfg.Adaptive.EMAAlpha)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	body := `
url: http://gpu-box:8000/v1/chat/completions
steps: 12
cooldown: 500ms
fixed_draft_lengths: [2, 6]
adaptive:
  decrease_step: 2
load:
  enabled: true
  trigger_step: 4
  duration: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:8000/v1/chat/completions", cfg.URL)
	assert.Equal(t, 12, cfg.Steps)
	assert.Equal(t, 500*time.Millisecond, cfg.Cooldown)
	assert.Equal(t, []int{2, 6}, cfg.FixedDraftLengths)
	assert.Equal(t, 2, cfg.Adaptive.DecreaseStep)
	// untouched nested defaults survive
	assert.Equal(t, 0.85, cfg.Adaptive.LowFactor)
	assert.True(t, cfg.Load.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Load.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("HALOSPEC_STEPS", "7")
	t.Setenv("HALOSPEC_MODEL", "tiny")
	t.Setenv("HALOSPEC_LOAD_ENABLED", "true")
	t.Setenv("HALOSPEC_ADAPTIVE_DECREASE_STEP", "2")
	t.Setenv("HALOSPEC_FIXED_DRAFT_LENGTHS", "1, 3,5")
	t.Setenv("HALOSPEC_COOLDOWN", "250ms")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(cfg))

	assert.Equal(t, 7, cfg.Steps)
	assert.Equal(t, "tiny", cfg.Model)
	assert.True(t, cfg.Load.Enabled)
	assert.Equal(t, 2, cfg.Adaptive.DecreaseStep)
	assert.Equal(t, []int{1, 3, 5}, cfg.FixedDraftLengths)
	assert.Equal(t, 250*time.Millisecond, cfg.Cooldown)
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"non-numeric int", "HALOSPEC_STEPS", "ten"},
		{"bad list element", "HALOSPEC_FIXED_DRAFT_LENGTHS", "1,two,4"},
		{"bad duration", "HALOSPEC_COOLDOWN", "soon"},
		{"bad bool", "HALOSPEC_LOAD_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			cfg := DefaultConfig()
			err := ApplyEnv(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestLoadSurfacesEnvErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: 4\n"), 0o644))
	t.Setenv("HALOSPEC_STEPS", "4x")

	cfg, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no url", func(c *Config) { c.URL = "" }},
		{"zero steps", func(c *Config) { c.Steps = 0 }},
		{"draft out of range", func(c *Config) { c.FixedDraftLengths = []int{9} }},
		{"nothing to run", func(c *Config) { c.FixedDraftLengths = nil; c.Adaptive.Enabled = false }},
		{"bad alpha", func(c *Config) { c.Adaptive.EMAAlpha = 0 }},
		{"bad decrease", func(c *Config) { c.Adaptive.DecreaseStep = 0 }},
		{"trigger past end", func(c *Config) { c.Load.Enabled = true; c.Load.TriggerStep = 99 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
