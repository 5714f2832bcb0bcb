package safety

import (
	"strings"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/types"
)

// Violation categories.
const (
	CategorySecurityRisk = "security_risk"
	CategoryViolence     = "violence"
	CategorySelfHarm     = "self_harm"
	CategoryIllegalGoods = "illegal_goods"
	CategoryHateSpeech   = "hate_speech"
	CategorySexualMinors = "sexual_minors"
	CategoryPromptAbuse  = "prompt_abuse"
	CategoryFraud        = "fraud"
)

// Term is a forbidden word or phrase. Category and severity belong to the
// term; nothing is computed at match time.
type Term struct {
	Text     string
	Category string
	Severity types.Severity
	Language string
}

// DefaultTerms returns the built-in English/Spanish term list. Order matters:
// the first matching term wins.
func DefaultTerms() []Term {
	return []Term{
		{Text: "child sexual", Category: CategorySexualMinors, Severity: types.SeverityCritical, Language: "en"},
		{Text: "abuso sexual infantil", Category: CategorySexualMinors, Severity: types.SeverityCritical, Language: "es"},
		{Text: "build a bomb", Category: CategoryViolence, Severity: types.SeverityCritical, Language: "en"},
		{Text: "fabricar una bomba", Category: CategoryViolence, Severity: types.SeverityCritical, Language: "es"},
		{Text: "kill myself", Category: CategorySelfHarm, Severity: types.SeverityCritical, Language: "en"},
		{Text: "suicidarme", Category: CategorySelfHarm, Severity: types.SeverityCritical, Language: "es"},
		{Text: "exploit", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "en"},
		{Text: "explotar una vulnerabilidad", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "es"},
		{Text: "sql injection", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "en"},
		{Text: "inyección sql", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "es"},
		{Text: "malware", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "en"},
		{Text: "ransomware", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "en"},
		{Text: "hackear", Category: CategorySecurityRisk, Severity: types.SeverityHigh, Language: "es"},
		{Text: "ignore previous instructions", Category: CategoryPromptAbuse, Severity: types.SeverityMedium, Language: "en"},
		{Text: "ignora las instrucciones anteriores", Category: CategoryPromptAbuse, Severity: types.SeverityMedium, Language: "es"},
		{Text: "buy cocaine", Category: CategoryIllegalGoods, Severity: types.SeverityHigh, Language: "en"},
		{Text: "comprar cocaína", Category: CategoryIllegalGoods, Severity: types.SeverityHigh, Language: "es"},
		{Text: "stolen credit card", Category: CategoryFraud, Severity: types.SeverityHigh, Language: "en"},
		{Text: "tarjeta de crédito robada", Category: CategoryFraud, Severity: types.SeverityHigh, Language: "es"},
		{Text: "ethnic cleansing", Category: CategoryHateSpeech, Severity: types.SeverityHigh, Language: "en"},
		{Text: "limpieza étnica", Category: CategoryHateSpeech, Severity: types.SeverityHigh, Language: "es"},
	}
}

// TermsFromConfig converts configured terms, skipping blank entries and
// defaulting unknown severities to medium. An empty config yields DefaultTerms.
func TermsFromConfig(cfg *config.SafetyConfig) []Term {
	if cfg == nil || len(cfg.Terms) == 0 {
		return DefaultTerms()
	}
	terms := make([]Term, 0, len(cfg.Terms))
	for _, t := range cfg.Terms {
		text := strings.TrimSpace(t.Term)
		if text == "" {
			continue
		}
		sev, ok := types.ParseSeverity(strings.ToLower(t.Severity))
		if !ok {
			sev = types.SeverityMedium
		}
		category := t.Category
		if category == "" {
			category = CategorySecurityRisk
		}
		terms = append(terms, Term{Text: text, Category: category, Severity: sev, Language: t.Language})
	}
	return terms
}
