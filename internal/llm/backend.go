// Package llm defines the model backend contract used by the orchestrator and
// its two implementations: an OpenAI-compatible cloud aggregator (OpenRouter)
// and a local Ollama endpoint.
package llm

import (
	"context"

	"github.com/af-corp/aegis-chat/internal/types"
)

// Request is one model step.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []types.Message
	Tools        []ToolDefinition
	Temperature  float64
}

// Reply is the outcome of one model step: text, tool calls, or both.
type Reply struct {
	Text         string
	ToolCalls    []types.ToolCall
	FinishReason string
}

// DeltaFunc receives text fragments in generation order. A non-nil error
// aborts the stream and is returned from Stream.
type DeltaFunc func(text string) error

// Backend streams one model step. Tool choice is always "auto".
type Backend interface {
	Name() string
	Stream(ctx context.Context, req Request, onDelta DeltaFunc) (Reply, error)
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  Schema
}

// Schema is the subset of JSON Schema used by tool parameters.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single tool parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}
