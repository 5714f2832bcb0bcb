package config

// SafetyConfig holds the forbidden-term list scanned by the safety filter.
// An empty list means the built-in defaults are used.
type SafetyConfig struct {
	Terms []SafetyTerm `yaml:"terms"`
}

type SafetyTerm struct {
	Term     string `yaml:"term"`
	Category string `yaml:"category"`
	Severity string `yaml:"severity"`
	Language string `yaml:"language,omitempty"`
}
