// Package tools builds the set of tools the model may call during a request.
//
// The tool kinds are a closed set known at compile time. Each kind owns a
// typed argument struct that doubles as its schema check: arguments are
// decoded strictly (unknown fields rejected) and then validated before the
// executor runs. Execution never returns an error to the caller; every
// outcome, including panics, becomes a ToolResult.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/af-corp/aegis-chat/internal/llm"
	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/types"
)

// ErrNoUserContext is the result error of user-scoped tools called without a
// user id.
var ErrNoUserContext = errors.New("no user context")

// Kind names a tool.
type Kind string

const (
	KindWebSearch     Kind = "web_search"
	KindReadWebpage   Kind = "read_webpage"
	KindGenerateImage Kind = "generate_image"
	KindSaveMemory    Kind = "save_memory"
	KindRouteOrder    Kind = "route_order"
	KindEmitWebsite   Kind = "emit_website"
)

// Kinds lists every tool kind in the order tools are offered to the model.
var Kinds = []Kind{
	KindWebSearch,
	KindReadWebpage,
	KindGenerateImage,
	KindSaveMemory,
	KindRouteOrder,
	KindEmitWebsite,
}

// Tool is a single callable tool.
type Tool interface {
	Kind() Kind
	Definition() llm.ToolDefinition
	invoke(ctx context.Context, userID string, raw json.RawMessage) (any, error)
}

// handler binds a kind to its typed arguments and executor.
type handler[A Args] struct {
	kind         Kind
	description  string
	schema       llm.Schema
	requiresUser bool
	exec         func(ctx context.Context, userID string, args A) (any, error)
}

func (h *handler[A]) Kind() Kind { return h.kind }

func (h *handler[A]) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: string(h.kind), Description: h.description, Parameters: h.schema}
}

func (h *handler[A]) invoke(ctx context.Context, userID string, raw json.RawMessage) (any, error) {
	if h.requiresUser && userID == "" {
		return nil, ErrNoUserContext
	}
	var args A
	if err := decodeStrict(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return h.exec(ctx, userID, args)
}

func decodeStrict(raw json.RawMessage, dest any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after arguments")
	}
	return nil
}

// Dependencies are the collaborators behind the tool executors. A nil
// collaborator removes its tool from every toolset.
type Dependencies struct {
	Search   Searcher
	Webpages PageReader
	Images   ImageGenerator
	Memory   MemoryWriter
	Orders   OrderRouter
	Websites WebsiteSink
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Registry holds one handler per kind and builds per-request toolsets.
type Registry struct {
	handlers map[Kind]Tool
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewRegistry(deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers: make(map[Kind]Tool, len(Kinds)),
		metrics:  deps.Metrics,
		logger:   logger,
	}
	for _, kind := range Kinds {
		if t := newTool(kind, deps); t != nil {
			r.handlers[kind] = t
		}
	}
	return r
}

// newTool is the single place a kind is bound to its executor.
func newTool(kind Kind, deps Dependencies) Tool {
	switch kind {
	case KindWebSearch:
		if deps.Search == nil {
			return nil
		}
		return webSearchTool(deps.Search)
	case KindReadWebpage:
		if deps.Webpages == nil {
			return nil
		}
		return readWebpageTool(deps.Webpages)
	case KindGenerateImage:
		if deps.Images == nil {
			return nil
		}
		return generateImageTool(deps.Images)
	case KindSaveMemory:
		if deps.Memory == nil {
			return nil
		}
		return saveMemoryTool(deps.Memory)
	case KindRouteOrder:
		if deps.Orders == nil {
			return nil
		}
		return routeOrderTool(deps.Orders)
	case KindEmitWebsite:
		if deps.Websites == nil {
			return nil
		}
		return emitWebsiteTool(deps.Websites)
	default:
		panic(fmt.Sprintf("tools: unhandled kind %q", kind))
	}
}

// enabled reports whether kind belongs in a toolset for these flags and user.
// The web tools are always present.
func enabled(kind Kind, flags types.FeatureFlags, userID string) bool {
	switch kind {
	case KindWebSearch, KindReadWebpage:
		return true
	case KindGenerateImage:
		return flags.ImagesEnabled
	case KindSaveMemory:
		return flags.MemoryEnabled && userID != ""
	case KindRouteOrder:
		return flags.OrdersEnabled
	case KindEmitWebsite:
		return flags.WebsiteEnabled
	default:
		return false
	}
}

// Build returns the toolset for one request.
func (r *Registry) Build(userID string, flags types.FeatureFlags) *Toolset {
	ts := &Toolset{
		userID:  userID,
		tools:   make(map[string]Tool),
		metrics: r.metrics,
		logger:  r.logger,
	}
	for _, kind := range Kinds {
		t, ok := r.handlers[kind]
		if !ok || !enabled(kind, flags, userID) {
			continue
		}
		ts.tools[string(kind)] = t
		ts.order = append(ts.order, t)
	}
	return ts
}

// Toolset is the tools available to one request.
type Toolset struct {
	userID  string
	tools   map[string]Tool
	order   []Tool
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// Definitions describes the toolset to the model, in Kinds order.
func (ts *Toolset) Definitions() []llm.ToolDefinition {
	if ts == nil {
		return nil
	}
	defs := make([]llm.ToolDefinition, 0, len(ts.order))
	for _, t := range ts.order {
		defs = append(defs, t.Definition())
	}
	return defs
}

// Names lists the tool names in the set.
func (ts *Toolset) Names() []string {
	if ts == nil {
		return nil
	}
	names := make([]string, 0, len(ts.order))
	for _, t := range ts.order {
		names = append(names, string(t.Kind()))
	}
	return names
}

func (ts *Toolset) Has(kind Kind) bool {
	if ts == nil {
		return false
	}
	_, ok := ts.tools[string(kind)]
	return ok
}

// Execute runs one tool call and always returns a result carrying call.ID.
func (ts *Toolset) Execute(ctx context.Context, call types.ToolCall) (result types.ToolResult) {
	result.ID = call.ID
	defer func() {
		if r := recover(); r != nil {
			result = types.ToolResult{ID: call.ID, Error: fmt.Sprintf("tool %s failed unexpectedly", call.Name)}
			ts.logger.Error("tool panicked", "tool", call.Name, "tool_call_id", call.ID, "panic", r)
		}
		ts.metrics.RecordToolCall(call.Name, result.Success)
	}()

	t, ok := ts.tools[call.Name]
	if !ok {
		result.Error = fmt.Sprintf("unknown tool: %s", call.Name)
		return result
	}

	payload, err := t.invoke(ctx, ts.userID, call.Arguments)
	if err != nil {
		ts.logger.Warn("tool call failed", "tool", call.Name, "tool_call_id", call.ID, "error", err)
		result.Error = err.Error()
		return result
	}
	result.Success = true
	result.Payload = payload
	return result
}
