package types

// Severity grades a safety violation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Level returns a numeric level for comparison.
// Higher values mean more severe.
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast returns true if s is as severe as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s.Level() >= other.Level()
}

func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	default:
		return "", false
	}
}
