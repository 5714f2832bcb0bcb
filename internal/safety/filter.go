// Package safety scans inbound user text against a forbidden-term list and
// records matches for human review. The filter is advisory: it never blocks a
// request.
package safety

import (
	"strings"
	"sync"

	"github.com/af-corp/aegis-chat/internal/types"
)

// Verdict is the outcome of a check. ViolationType, Severity and Term are only
// set when Flagged is true.
type Verdict struct {
	Flagged       bool
	ViolationType string
	Severity      types.Severity
	Term          string
}

// Filter matches text against a term list. Safe for concurrent use; the term
// list can be swapped on config reload.
type Filter struct {
	mu    sync.RWMutex
	terms []compiledTerm
}

type compiledTerm struct {
	Term
	needle string
}

// NewFilter creates a filter over terms.
func NewFilter(terms []Term) *Filter {
	f := &Filter{}
	f.SetTerms(terms)
	return f
}

// SetTerms replaces the term list.
func (f *Filter) SetTerms(terms []Term) {
	compiled := make([]compiledTerm, 0, len(terms))
	for _, t := range terms {
		needle := normalize(t.Text)
		if needle == "" {
			continue
		}
		compiled = append(compiled, compiledTerm{Term: t, needle: needle})
	}
	f.mu.Lock()
	f.terms = compiled
	f.mu.Unlock()
}

// Check scans text for the first listed term it contains.
func (f *Filter) Check(text string) Verdict {
	if f == nil || text == "" {
		return Verdict{}
	}
	haystack := normalize(text)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.terms {
		if strings.Contains(haystack, t.needle) {
			return Verdict{
				Flagged:       true,
				ViolationType: t.Category,
				Severity:      t.Severity,
				Term:          t.Text,
			}
		}
	}
	return Verdict{}
}

// CheckMessages checks the most recent user turn, which is the only text the
// caller contributed in this request.
func (f *Filter) CheckMessages(messages []types.Message) (Verdict, string) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			return f.Check(messages[i].Content), messages[i].Content
		}
	}
	return Verdict{}, ""
}

// normalize lower-cases and collapses whitespace so multi-word terms match
// across line breaks and repeated spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
