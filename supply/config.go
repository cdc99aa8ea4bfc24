/*
config.go - Tunables for the forecasting pipeline

PURPOSE:
  One Config struct carries every tunable the pipeline consumes: the rules
  engine policy constants, the Gemini credential pool and retry budget,
  and the orchestrator's concurrency/deadline knobs. Defaults mirror the
  production values; a YAML file and environment variables layer on top.

PRECEDENCE (lowest to highest):
  1. Default()
  2. YAML file (LoadFile)
  3. Environment (ApplyEnv): GEMINI_API_KEY, GEMINI_API_KEY_1..3,
     GEMINI_MODEL

VALIDATION:
  Validate() is called once at startup and returns ConfigurationError for
  invalid tunables (negative multiplier, zero fan-out, ...). An empty
  credential pool is NOT a configuration error: the pipeline runs with
  justification disabled and every report ships a null llm object.
*/
package supply

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable consumed by the core pipeline.
type Config struct {
	// Rules engine policy.
	MinOrderQuantity      int     `yaml:"min_order_quantity"`
	SafetyStockMultiplier float64 `yaml:"safety_stock_multiplier"`
	ExpiryThresholdDays   int     `yaml:"expiry_threshold_days"`

	// UrgencyExpiryWeight scales the expiry-proximity term of the urgency
	// score (see ComputeFeatures).
	UrgencyExpiryWeight float64 `yaml:"urgency_expiry_weight"`

	// Reasoning service.
	APIKeys []string `yaml:"api_keys"`
	Model   string   `yaml:"model"`
	BaseURL string   `yaml:"base_url"`

	// Retry budget for one justification request.
	MaxAttempts       int `yaml:"max_attempts"`
	InitialBackoffMS  int `yaml:"initial_backoff_ms"`
	MaxBackoffMS      int `yaml:"max_backoff_ms"`
	PerCallTimeoutSec int `yaml:"per_call_timeout_seconds"`

	// Orchestration.
	MaxConcurrent    int `yaml:"max_concurrent_requests"`
	BatchDeadlineSec int `yaml:"batch_deadline_seconds"`

	// Selective LLM routing: justify only high-signal sites, and stop
	// calling the LLM for the rest of a run after this many consecutive
	// failures.
	SelectiveLLM           bool    `yaml:"selective_llm"`
	LLMPriorityThreshold   float64 `yaml:"llm_priority_threshold"`
	LLMExpiryThresholdDays int     `yaml:"llm_expiry_threshold_days"`
	MaxLLMFailures         int     `yaml:"max_llm_failures"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		MinOrderQuantity:      10,
		SafetyStockMultiplier: 1.2,
		ExpiryThresholdDays:   30,
		UrgencyExpiryWeight:   30,

		Model:   "gemini-2.0-flash",
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",

		MaxAttempts:       3,
		InitialBackoffMS:  1000,
		MaxBackoffMS:      10000,
		PerCallTimeoutSec: 30,

		MaxConcurrent:    3,
		BatchDeadlineSec: 0, // no deadline unless the caller sets one

		SelectiveLLM:           true,
		LLMPriorityThreshold:   1.5,
		LLMExpiryThresholdDays: 60,
		MaxLLMFailures:         3,
	}
}

// LoadFile overlays a YAML config file onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables. API keys accumulate in order:
// GEMINI_API_KEY first, then GEMINI_API_KEY_1 through GEMINI_API_KEY_3,
// matching the deployed credential layout.
func (c *Config) ApplyEnv() {
	var keys []string
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		keys = append(keys, k)
	}
	for i := 1; i <= 3; i++ {
		if k := os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		c.APIKeys = keys
	}
	if m := os.Getenv("GEMINI_MODEL"); m != "" {
		c.Model = m
	}
	if u := os.Getenv("GEMINI_BASE_URL"); u != "" {
		c.BaseURL = u
	}
}

// Validate checks every tunable once at startup.
func (c *Config) Validate() error {
	if c.MinOrderQuantity < 0 {
		return &ConfigurationError{Param: "min_order_quantity", Detail: "must be >= 0"}
	}
	if c.SafetyStockMultiplier <= 0 {
		return &ConfigurationError{Param: "safety_stock_multiplier", Detail: "must be > 0"}
	}
	if c.ExpiryThresholdDays < 0 {
		return &ConfigurationError{Param: "expiry_threshold_days", Detail: "must be >= 0"}
	}
	if c.UrgencyExpiryWeight < 0 {
		return &ConfigurationError{Param: "urgency_expiry_weight", Detail: "must be >= 0"}
	}
	if c.MaxConcurrent < 1 {
		return &ConfigurationError{Param: "max_concurrent_requests", Detail: "must be >= 1"}
	}
	if c.MaxAttempts < 1 {
		return &ConfigurationError{Param: "max_attempts", Detail: "must be >= 1"}
	}
	if c.InitialBackoffMS < 0 || c.MaxBackoffMS < c.InitialBackoffMS {
		return &ConfigurationError{Param: "backoff", Detail: "need 0 <= initial_backoff_ms <= max_backoff_ms"}
	}
	if c.PerCallTimeoutSec < 1 {
		return &ConfigurationError{Param: "per_call_timeout_seconds", Detail: "must be >= 1"}
	}
	if len(c.APIKeys) > 4 {
		return &ConfigurationError{Param: "api_keys", Detail: "at most 4 credentials supported"}
	}
	return nil
}

// SafetyStock returns the multiplier as a decimal for rules-engine math.
func (c *Config) SafetyStock() decimal.Decimal {
	return decimal.NewFromFloat(c.SafetyStockMultiplier)
}

// ExpiryWeight returns the urgency expiry weight as a decimal.
func (c *Config) ExpiryWeight() decimal.Decimal {
	return decimal.NewFromFloat(c.UrgencyExpiryWeight)
}

// PerCallTimeout is the timeout for one justification call, independent of
// the batch deadline.
func (c *Config) PerCallTimeout() time.Duration {
	return time.Duration(c.PerCallTimeoutSec) * time.Second
}

// BatchDeadline returns the overall deadline, or 0 when unset.
func (c *Config) BatchDeadline() time.Duration {
	return time.Duration(c.BatchDeadlineSec) * time.Second
}

// InitialBackoff returns the first retry delay.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff caps the retry delay.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}
