package types

import "encoding/json"

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Mode selects additional system instructions for a request.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeSearch   Mode = "search"
	ModeShopping Mode = "shopping"
	ModeWebsite  Mode = "website"
)

// ParseMode returns the mode for s and whether it is a known value.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeChat, ModeSearch, ModeShopping, ModeWebsite:
		return Mode(s), true
	default:
		return "", false
	}
}

// ChatRequest is the canonical internal representation of one inbound chat turn.
// It is built once per call and treated as immutable afterwards.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	ModelID  string    `json:"modelId,omitempty"`
	UserID   string    `json:"userId,omitempty"`
	Mode     Mode      `json:"mode,omitempty"`

	// Locale picks the language of translated failure messages ("en", "es").
	Locale    string `json:"locale,omitempty"`
	RequestID string `json:"-"`
}

// Message is a single conversation turn. Assistant turns may carry tool calls;
// tool turns carry the ID of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult answers exactly one ToolCall.
type ToolResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Content renders the result as the text fed back to the model.
func (r ToolResult) Content() string {
	body := map[string]any{"success": r.Success}
	if r.Success {
		body["result"] = r.Payload
	} else {
		body["error"] = r.Error
	}
	data, err := json.Marshal(body)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(data)
}
