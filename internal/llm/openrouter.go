package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/types"
)

// OpenRouter talks to an OpenAI-compatible aggregator. Model ids are passed
// through unchanged ("openai/gpt-4o-mini", "meta-llama/llama-3.1-70b").
type OpenRouter struct {
	client openai.Client
}

// NewOpenRouter creates the aggregator backend. Extra options are appended
// after the ones derived from cfg.
func NewOpenRouter(cfg config.AggregatorConfig, opts ...option.RequestOption) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("aggregator api key is required")
	}
	reqOpts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	for k, v := range cfg.Headers {
		if v != "" {
			reqOpts = append(reqOpts, option.WithHeader(k, v))
		}
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenRouter{client: openai.NewClient(reqOpts...)}, nil
}

func (o *OpenRouter) Name() string { return "openrouter" }

// Stream sends one step and forwards content deltas as they arrive.
func (o *OpenRouter) Stream(ctx context.Context, req Request, onDelta DeltaFunc) (Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    toOpenAIMessages(req.SystemPrompt, req.Messages),
		Temperature: openai.Float(req.Temperature),
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}

	var reply Reply
	var text strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			id := tool.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			reply.ToolCalls = append(reply.ToolCalls, types.ToolCall{
				ID:        id,
				Name:      tool.Name,
				Arguments: rawArguments(tool.Arguments),
			})
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			reply.FinishReason = string(choice.FinishReason)
		}
		if delta := choice.Delta.Content; delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return Reply{}, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Reply{}, fmt.Errorf("stream openrouter completion: %w", err)
	}

	reply.Text = text.String()
	return reply, nil
}

func toOpenAIMessages(systemPrompt string, messages []types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case types.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case types.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        d.Name,
			Description: openai.String(d.Description),
			Parameters:  schemaToMap(d.Parameters),
		}))
	}
	return tools
}

// schemaToMap renders s as the generic JSON object the SDK expects.
func schemaToMap(s Schema) openai.FunctionParameters {
	data, err := json.Marshal(s)
	if err != nil {
		return openai.FunctionParameters{"type": "object"}
	}
	var params openai.FunctionParameters
	if err := json.Unmarshal(data, &params); err != nil {
		return openai.FunctionParameters{"type": "object"}
	}
	return params
}

// rawArguments keeps well-formed argument JSON as-is. Anything else is carried
// as a JSON string so it fails schema validation instead of corrupting the
// conversation history.
func rawArguments(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
