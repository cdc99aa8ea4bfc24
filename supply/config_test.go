package supply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.MinOrderQuantity)
	assert.Equal(t, 1.2, cfg.SafetyStockMultiplier)
	assert.Equal(t, 30, cfg.ExpiryThresholdDays)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 3, cfg.MaxConcurrent)
	assert.True(t, cfg.SelectiveLLM)
	assert.Empty(t, cfg.APIKeys, "no credentials baked into defaults")
}

func TestValidateRejectsBadTunables(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"negative min order", func(c *Config) { c.MinOrderQuantity = -1 }, "min_order_quantity"},
		{"zero safety stock", func(c *Config) { c.SafetyStockMultiplier = 0 }, "safety_stock_multiplier"},
		{"negative expiry threshold", func(c *Config) { c.ExpiryThresholdDays = -1 }, "expiry_threshold_days"},
		{"zero fan-out", func(c *Config) { c.MaxConcurrent = 0 }, "max_concurrent_requests"},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, "max_attempts"},
		{"backoff inversion", func(c *Config) { c.InitialBackoffMS = 5000; c.MaxBackoffMS = 100 }, "backoff"},
		{"zero call timeout", func(c *Config) { c.PerCallTimeoutSec = 0 }, "per_call_timeout_seconds"},
		{"too many keys", func(c *Config) { c.APIKeys = []string{"a", "b", "c", "d", "e"} }, "api_keys"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			var cerr *ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tc.param, cerr.Param)
		})
	}
}

func TestValidateEmptyKeyPoolIsFine(t *testing.T) {
	// Running without credentials degrades justification, it does not
	// stop the pipeline.
	cfg := Default()
	cfg.APIKeys = nil
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "supply.yaml")
	yaml := []byte("min_order_quantity: 25\nmodel: gemini-2.5-pro\napi_keys:\n  - file-key\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o644))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, 25, cfg.MinOrderQuantity)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model)
	assert.Equal(t, []string{"file-key"}, cfg.APIKeys)
	// Untouched tunables keep their defaults.
	assert.Equal(t, 1.2, cfg.SafetyStockMultiplier)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_order_quantity: [not a number"), 0o644))
	assert.Error(t, cfg.LoadFile(path))
}

func TestApplyEnvKeyAccumulation(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "primary")
	t.Setenv("GEMINI_API_KEY_1", "alt-1")
	t.Setenv("GEMINI_API_KEY_2", "alt-2")
	t.Setenv("GEMINI_API_KEY_3", "")
	t.Setenv("GEMINI_MODEL", "gemini-2.0-flash-lite")

	cfg := Default()
	cfg.APIKeys = []string{"from-file"}
	cfg.ApplyEnv()

	// Environment replaces the file keys wholesale, in declared order.
	assert.Equal(t, []string{"primary", "alt-1", "alt-2"}, cfg.APIKeys)
	assert.Equal(t, "gemini-2.0-flash-lite", cfg.Model)
}

func TestApplyEnvLeavesConfigWhenUnset(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY_1", "")
	t.Setenv("GEMINI_API_KEY_2", "")
	t.Setenv("GEMINI_API_KEY_3", "")
	t.Setenv("GEMINI_MODEL", "")

	cfg := Default()
	cfg.APIKeys = []string{"from-file"}
	cfg.ApplyEnv()

	assert.Equal(t, []string{"from-file"}, cfg.APIKeys)
	assert.Equal(t, "gemini-2.0-flash", cfg.Model)
}
