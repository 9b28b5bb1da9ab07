// Package config loads executor, breaker, and telemetry settings from a
// YAML file. Per-endpoint policies inherit from the defaults block, so a
// file only spells out what differs per dependency.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/bulwark/breaker"
	"github.com/jonwraymond/bulwark/exec"
	"github.com/jonwraymond/bulwark/observe"
)

// Config is the root of the configuration file.
type Config struct {
	Service   string                  `yaml:"service"`
	Version   string                  `yaml:"version"`
	Defaults  PolicyConfig            `yaml:"defaults"`
	Endpoints map[string]PolicyConfig `yaml:"endpoints"`
	Breaker   BreakerConfig           `yaml:"breaker"`
	Observe   ObserveConfig           `yaml:"observe"`
}

// PolicyConfig configures retry and deadline behavior for one endpoint.
type PolicyConfig struct {
	TimeoutPerAttempt Duration `yaml:"timeout_per_attempt"`
	MaxAttempts       uint     `yaml:"max_attempts"`
	BackoffBase       Duration `yaml:"backoff_base"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	// Jitter defaults to true when omitted.
	Jitter *bool `yaml:"jitter"`
}

// BreakerConfig configures the shared breaker registry.
type BreakerConfig struct {
	FailureThreshold  uint     `yaml:"failure_threshold"`
	Cooldown          Duration `yaml:"cooldown"`
	HalfOpenMaxProbes uint     `yaml:"half_open_max_probes"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig configures the tracing subsystem.
type TracingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Exporter  string  `yaml:"exporter"`
	SamplePct float64 `yaml:"sample_pct"`
}

// MetricsConfig configures the metrics subsystem.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// LoggingConfig configures the logging subsystem.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applies defaults, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service == "" {
		c.Service = "bulwark"
	}
	c.Defaults.applyDefaults()
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = Duration(30 * time.Second)
	}
	if c.Breaker.HalfOpenMaxProbes == 0 {
		c.Breaker.HalfOpenMaxProbes = 1
	}
}

func (p *PolicyConfig) applyDefaults() {
	if p.TimeoutPerAttempt == 0 {
		p.TimeoutPerAttempt = Duration(30 * time.Second)
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.BackoffBase == 0 {
		p.BackoffBase = Duration(100 * time.Millisecond)
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 2.0
	}
	if p.Jitter == nil {
		on := true
		p.Jitter = &on
	}
}

// Validate checks every bound the executor and breaker require.
func (c *Config) Validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	for key, p := range c.Endpoints {
		merged := c.merged(p)
		if err := merged.validate("endpoints." + key); err != nil {
			return err
		}
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1, got %d", c.Breaker.FailureThreshold)
	}
	if c.Breaker.Cooldown < 0 {
		return fmt.Errorf("breaker.cooldown must be >= 0, got %v", c.Breaker.Cooldown)
	}
	if c.Breaker.HalfOpenMaxProbes < 1 {
		return fmt.Errorf("breaker.half_open_max_probes must be >= 1, got %d", c.Breaker.HalfOpenMaxProbes)
	}

	obs := c.ObserveSettings()
	if err := obs.Validate(); err != nil {
		return err
	}
	return nil
}

func (p PolicyConfig) validate(section string) error {
	if p.TimeoutPerAttempt <= 0 {
		return fmt.Errorf("%s.timeout_per_attempt must be > 0, got %v", section, p.TimeoutPerAttempt)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%s.max_attempts must be >= 1, got %d", section, p.MaxAttempts)
	}
	if p.BackoffBase < 0 {
		return fmt.Errorf("%s.backoff_base must be >= 0, got %v", section, p.BackoffBase)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("%s.backoff_multiplier must be >= 1, got %v", section, p.BackoffMultiplier)
	}
	return nil
}

// merged overlays endpoint values onto the defaults; zero fields inherit.
func (c *Config) merged(p PolicyConfig) PolicyConfig {
	out := c.Defaults
	if p.TimeoutPerAttempt != 0 {
		out.TimeoutPerAttempt = p.TimeoutPerAttempt
	}
	if p.MaxAttempts != 0 {
		out.MaxAttempts = p.MaxAttempts
	}
	if p.BackoffBase != 0 {
		out.BackoffBase = p.BackoffBase
	}
	if p.BackoffMultiplier != 0 {
		out.BackoffMultiplier = p.BackoffMultiplier
	}
	if p.Jitter != nil {
		out.Jitter = p.Jitter
	}
	return out
}

// PolicyFor resolves the executor policy for key, overlaying any endpoint
// block onto the defaults.
func (c *Config) PolicyFor(key string) exec.Policy {
	p := c.Defaults
	if override, ok := c.Endpoints[key]; ok {
		p = c.merged(override)
	}
	return exec.Policy{
		TimeoutPerAttempt: p.TimeoutPerAttempt.Std(),
		MaxAttempts:       p.MaxAttempts,
		BackoffBase:       p.BackoffBase.Std(),
		BackoffMultiplier: p.BackoffMultiplier,
		Jitter:            p.Jitter == nil || *p.Jitter,
	}
}

// BreakerSettings converts the breaker block.
func (c *Config) BreakerSettings() breaker.Config {
	return breaker.Config{
		FailureThreshold:  c.Breaker.FailureThreshold,
		Cooldown:          c.Breaker.Cooldown.Std(),
		HalfOpenMaxProbes: c.Breaker.HalfOpenMaxProbes,
	}
}

// ObserveSettings converts the observe block.
func (c *Config) ObserveSettings() observe.Config {
	return observe.Config{
		ServiceName: c.Service,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.Tracing.Enabled,
			Exporter:  c.Observe.Tracing.Exporter,
			SamplePct: c.Observe.Tracing.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.Metrics.Enabled,
			Exporter: c.Observe.Metrics.Exporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: c.Observe.Logging.Enabled,
			Level:   c.Observe.Logging.Level,
		},
	}
}

// Executor builds an executor from the file: a registry with the breaker
// settings, the default policy, and a per-key override for every endpoint
// block.
func (c *Config) Executor(opts ...exec.Option) *exec.Executor {
	reg := breaker.NewRegistry(c.BreakerSettings())

	all := []exec.Option{exec.WithPolicy(c.PolicyFor(""))}
	for key := range c.Endpoints {
		all = append(all, exec.WithPolicyFor(key, c.PolicyFor(key)))
	}
	all = append(all, opts...)
	return exec.New(reg, all...)
}
