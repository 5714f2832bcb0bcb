package safety

import (
	"regexp"
	"sort"
)

// secretPattern matches a credential that must not reach the security log.
type secretPattern struct {
	name  string
	regex *regexp.Regexp
}

var secretPatterns = []secretPattern{
	{name: "aws_access_key", regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{name: "github_token", regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{name: "stripe_secret_key", regex: regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`)},
	{name: "openai_api_key", regex: regexp.MustCompile(`sk-(?:proj-|or-v1-)?[A-Za-z0-9_\-]{32,}`)},
	{name: "chat_api_key", regex: regexp.MustCompile(`chat-[a-z]+-[A-Za-z0-9]{32}`)},
	{name: "private_key", regex: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`)},
	{name: "connection_string", regex: regexp.MustCompile(`(?:postgres|postgresql|mysql|mongodb|redis)://[^\s]+`)},
	{name: "jwt", regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
}

type span struct {
	start, end int
	name       string
}

// Redact replaces credentials in text with "[REDACTED:<kind>]". Overlapping
// matches collapse into the first one.
func Redact(text string) string {
	var spans []span
	for _, p := range secretPatterns {
		for _, loc := range p.regex.FindAllStringIndex(text, -1) {
			spans = append(spans, span{start: loc[0], end: loc[1], name: p.name})
		}
	}
	if len(spans) == 0 {
		return text
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]byte, 0, len(text))
	pos := 0
	for _, s := range spans {
		if s.start < pos {
			continue
		}
		out = append(out, text[pos:s.start]...)
		out = append(out, "[REDACTED:"+s.name+"]"...)
		pos = s.end
	}
	out = append(out, text[pos:]...)
	return string(out)
}
