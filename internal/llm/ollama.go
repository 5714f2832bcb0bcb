package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/types"
)

// Ollama talks to a local inference endpoint. Ollama does not assign ids to
// tool calls, so they are generated here.
type Ollama struct {
	client *api.Client
}

func NewOllama(cfg config.LocalConfig) (*Ollama, error) {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Ollama{client: api.NewClient(parsed, httpClient)}, nil
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (Reply, error) {
	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.SystemPrompt, req.Messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOllamaTools(req.Tools)
	}

	var reply Reply
	var text strings.Builder
	err := o.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if delta := resp.Message.Content; delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return err
				}
			}
		}
		for _, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			reply.ToolCalls = append(reply.ToolCalls, types.ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      tc.Function.Name,
				Arguments: args,
			})
		}
		if resp.Done {
			reply.FinishReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("stream ollama chat: %w", err)
	}

	reply.Text = text.String()
	return reply, nil
}

func toOllamaMessages(systemPrompt string, messages []types.Message) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, api.Message{Role: string(types.RoleSystem), Content: systemPrompt})
	}
	for _, m := range messages {
		msg := api.Message{Role: string(m.Role), Content: m.Content}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOllamaTools(defs []ToolDefinition) []api.Tool {
	tools := make([]api.Tool, 0, len(defs))
	for _, d := range defs {
		params := api.ToolFunctionParameters{
			Type:       d.Parameters.Type,
			Required:   d.Parameters.Required,
			Properties: make(map[string]api.ToolProperty, len(d.Parameters.Properties)),
		}
		for name, p := range d.Parameters.Properties {
			params.Properties[name] = toOllamaProperty(p)
		}
		tools = append(tools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return tools
}

func toOllamaProperty(p Property) api.ToolProperty {
	prop := api.ToolProperty{
		Type:        api.PropertyType{p.Type},
		Description: p.Description,
	}
	for _, v := range p.Enum {
		prop.Enum = append(prop.Enum, v)
	}
	if p.Items != nil {
		prop.Items = map[string]any{"type": p.Items.Type}
	}
	return prop
}
