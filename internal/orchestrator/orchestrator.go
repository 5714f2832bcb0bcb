// Package orchestrator drives one chat request through the model/tool loop.
//
// A request moves through Init, Assembling, Streaming and Finalizing and ends
// in Done or Failed. Streaming repeats model steps until the model answers
// without tool calls, the step cap is hit, or the wall-clock budget runs out.
// Text is written to the Sink as the backend produces it.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/aegis-chat/internal/router"
	"github.com/af-corp/aegis-chat/internal/safety"
	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/tools"
	"github.com/af-corp/aegis-chat/internal/types"
)

// MemoryStore reads a user's long-term memory.
type MemoryStore interface {
	TopFacts(ctx context.Context, userID string, limit int) ([]string, error)
}

// Catalog lists the models clients may pick from.
type Catalog interface {
	ListActiveModels(ctx context.Context) ([]types.CatalogEntry, error)
}

// Settings holds the admin-managed persona and feature flags.
type Settings interface {
	SystemPrompt(ctx context.Context) (string, error)
	FeatureFlags(ctx context.Context) (types.FeatureFlags, error)
}

// Auditor accepts security log records without blocking.
type Auditor interface {
	Record(rec safety.Record) bool
}

// Sink receives answer text in generation order. A slow Sink slows the loop
// down; a failing Sink means the caller is gone.
type Sink interface {
	Write(chunk string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(chunk string) error

func (f SinkFunc) Write(chunk string) error { return f(chunk) }

// Discard is a Sink for callers that only want the Outcome.
var Discard Sink = SinkFunc(func(string) error { return nil })

// FinishReason tells how Streaming ended.
type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishStepCap FinishReason = "step_cap"
	FinishBudget  FinishReason = "budget"
)

// Outcome is the result of a successful run.
type Outcome struct {
	Content      string
	ModelUsed    string
	Backend      string
	Steps        int
	FinishReason FinishReason
}

// Config bounds the loop.
type Config struct {
	MaxSteps        int
	Budget          time.Duration
	Temperature     float64
	MemoryTopK      int
	MaxParallelCall int
	FallbackModel   string
	DefaultPersona  string
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 10
	}
	if c.Budget <= 0 {
		c.Budget = 3 * time.Minute
	}
	if c.MemoryTopK <= 0 {
		c.MemoryTopK = 10
	}
	if c.MaxParallelCall <= 0 {
		c.MaxParallelCall = 8
	}
	return c
}

// Deps are the orchestrator's collaborators. Memory, Catalog, Settings and
// Auditor may be nil.
type Deps struct {
	Filter   *safety.Filter
	Auditor  Auditor
	Memory   MemoryStore
	Catalog  Catalog
	Settings Settings
	Tools    *tools.Registry
	Backends *router.Registry
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Orchestrator is shared by all requests; per-request state lives in run.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry(tools.Dependencies{Logger: deps.Logger, Metrics: deps.Metrics})
	}
	if deps.Backends == nil {
		deps.Backends = router.NewRegistry(nil)
	}
	return &Orchestrator{cfg: cfg.withDefaults(), deps: deps}
}

// Run executes one request. Errors are ErrInvalidRequest (wrapped),
// ErrCanceled, or *ProviderError; anything a single tool does stays inside
// that tool's result.
func (o *Orchestrator) Run(ctx context.Context, req types.ChatRequest, sink Sink) (Outcome, error) {
	if sink == nil {
		sink = Discard
	}
	r := &run{
		o:      o,
		req:    req,
		sink:   sink,
		state:  StateInit,
		logger: o.deps.Logger.With("request_id", req.RequestID),
		start:  time.Now(),
	}
	out, err := r.execute(ctx)
	r.record(out, err)
	return out, err
}
