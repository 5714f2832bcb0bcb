// Package prompt assembles the effective system prompt for a chat request.
//
// Assembly is a pure function of its inputs. Fetching the persona and the
// user's memory facts is the caller's job and happens once per request.
package prompt

import (
	"strconv"
	"strings"

	"github.com/af-corp/aegis-chat/internal/types"
)

const memoryHeader = "Things you remember about this user (most important first):"

var modeInstructions = map[types.Mode]string{
	types.ModeSearch: "Web search mode: the user expects current information. Use the web_search tool before " +
		"answering factual questions, read the most relevant pages with read_webpage when snippets are not " +
		"enough, and cite the sources you used as links at the end of your answer.",
	types.ModeShopping: "Shopping mode: help the user compare products, prices and availability. Search the web " +
		"for current offers, present options as a short list with price and store, and only place an order with " +
		"route_order after the user has explicitly confirmed product and quantity.",
	types.ModeWebsite: "Website mode: the user wants a web page. Ask at most one clarifying question, then produce a " +
		"complete single-file HTML document with inline CSS and call emit_website with it. Do not paste the full " +
		"code in your reply; summarize what you built instead.",
}

// ModeInstruction returns the addendum for mode, or "" when the mode has none.
// Plain chat mode and unknown modes add nothing.
func ModeInstruction(mode types.Mode) string {
	return modeInstructions[mode]
}

// BuildSystemPrompt combines the base persona, the mode addendum and an
// enumerated memory block. Blank facts are skipped and the memory block is
// omitted entirely when no facts remain.
func BuildSystemPrompt(basePersona string, mode types.Mode, facts []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(basePersona))

	if addendum := ModeInstruction(mode); addendum != "" {
		writeSection(&b, addendum)
	}

	n := 0
	for _, fact := range facts {
		fact = strings.TrimSpace(fact)
		if fact == "" {
			continue
		}
		if n == 0 {
			writeSection(&b, memoryHeader)
		}
		n++
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(". ")
		b.WriteString(fact)
	}

	return b.String()
}

func writeSection(b *strings.Builder, text string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(text)
}
