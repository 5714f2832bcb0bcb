package config

import "time"

// BackendsConfig describes the two model backend families.
type BackendsConfig struct {
	Aggregator     AggregatorConfig     `yaml:"aggregator"`
	Local          LocalConfig          `yaml:"local"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// AggregatorConfig points at an OpenAI-compatible cloud aggregator (OpenRouter).
type AggregatorConfig struct {
	BaseURL string            `yaml:"base_url"`
	APIKey  string            `yaml:"api_key"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// LocalConfig points at a local Ollama inference endpoint.
type LocalConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

func DefaultBackendsConfig() *BackendsConfig {
	return &BackendsConfig{
		Aggregator: AggregatorConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Timeout: 2 * time.Minute,
		},
		Local: LocalConfig{
			BaseURL: "http://localhost:11434",
			Timeout: 5 * time.Minute,
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:      5,
			RecoveryProbeInterval: 15 * time.Second,
		},
	}
}
