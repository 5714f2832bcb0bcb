package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/af-corp/aegis-chat/internal/llm"
	"github.com/af-corp/aegis-chat/internal/prompt"
	"github.com/af-corp/aegis-chat/internal/router"
	"github.com/af-corp/aegis-chat/internal/safety"
	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/tools"
	"github.com/af-corp/aegis-chat/internal/types"
)

// State is a run's position in the request lifecycle.
type State string

const (
	StateInit       State = "init"
	StateAssembling State = "assembling"
	StateStreaming  State = "streaming"
	StateFinalizing State = "finalizing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// errBudgetExceeded ends Streaming early; it never leaves the package.
var errBudgetExceeded = errors.New("request budget exceeded")

// run is the private state of one request.
type run struct {
	o      *Orchestrator
	req    types.ChatRequest
	sink   Sink
	logger *slog.Logger
	start  time.Time

	state   State
	route   router.Route
	steps   int
	sinkErr error
}

// assembled is everything Streaming needs, gathered once per request.
type assembled struct {
	systemPrompt string
	modelID      string
	toolset      *tools.Toolset
}

func (r *run) transition(s State) {
	r.logger.Debug("orchestrator state", "from", r.state, "to", s, "step", r.steps)
	r.state = s
}

func (r *run) execute(parent context.Context) (Outcome, error) {
	if err := validate(r.req); err != nil {
		r.transition(StateFailed)
		return Outcome{}, err
	}

	ctx, cancel := context.WithTimeout(parent, r.o.cfg.Budget)
	defer cancel()

	r.transition(StateAssembling)
	a := r.assemble(ctx)
	if parent.Err() != nil {
		r.transition(StateFailed)
		return Outcome{}, ErrCanceled
	}

	route, err := r.o.deps.Backends.Route(a.modelID)
	if err != nil {
		r.transition(StateFailed)
		return Outcome{ModelUsed: a.modelID}, &ProviderError{Backend: string(router.FamilyFor(a.modelID)), Model: a.modelID, Err: err}
	}
	r.route = route

	r.transition(StateStreaming)
	text, reason, err := r.stream(parent, ctx, a)
	if err != nil {
		r.transition(StateFailed)
		return Outcome{ModelUsed: route.ModelID, Backend: route.Backend.Name(), Steps: r.steps}, err
	}

	r.transition(StateFinalizing)
	out := Outcome{
		Content:      text,
		ModelUsed:    route.ModelID,
		Backend:      route.Backend.Name(),
		Steps:        r.steps,
		FinishReason: reason,
	}
	r.transition(StateDone)
	return out, nil
}

func validate(req types.ChatRequest) error {
	if len(req.Messages) == 0 {
		return ErrEmptyMessages
	}
	for i, m := range req.Messages {
		switch m.Role {
		case types.RoleUser, types.RoleAssistant, types.RoleSystem:
		default:
			return fmt.Errorf("message %d has role %q: %w", i, m.Role, ErrUnknownRole)
		}
	}
	return nil
}

// assemble runs the safety check alongside the context reads. Read failures
// degrade to defaults rather than failing the request.
func (r *run) assemble(ctx context.Context) assembled {
	var (
		persona string
		flags   = types.DefaultFeatureFlags()
		facts   []string
		catalog []types.CatalogEntry
	)

	var g errgroup.Group
	g.Go(func() error {
		r.screen()
		return nil
	})
	g.Go(func() error {
		persona = r.persona(ctx)
		return nil
	})
	g.Go(func() error {
		flags = r.flags(ctx)
		if flags.MemoryEnabled {
			facts = r.facts(ctx)
		}
		return nil
	})
	g.Go(func() error {
		catalog = r.catalog(ctx)
		return nil
	})
	_ = g.Wait()

	modelID := router.Resolve(r.req.ModelID, catalog, r.o.cfg.FallbackModel)
	if r.req.ModelID != "" && modelID != r.req.ModelID {
		r.logger.Info("requested model unavailable, using fallback", "requested_model", r.req.ModelID, "model", modelID)
	}

	return assembled{
		systemPrompt: prompt.BuildSystemPrompt(persona, r.req.Mode, facts),
		modelID:      modelID,
		toolset:      r.o.deps.Tools.Build(r.req.UserID, flags),
	}
}

// screen checks the latest user turn. Flagged content is recorded for review
// and the request continues.
func (r *run) screen() {
	verdict, text := r.o.deps.Filter.CheckMessages(r.req.Messages)
	if !verdict.Flagged {
		return
	}
	r.logger.Warn("safety filter flagged message",
		"user_id", r.req.UserID,
		"violation_type", verdict.ViolationType,
		"severity", verdict.Severity,
	)
	r.o.deps.Metrics.RecordSafetyFlag(verdict.ViolationType, string(verdict.Severity))
	if r.o.deps.Auditor != nil {
		r.o.deps.Auditor.Record(safety.Record{
			UserID:        r.req.UserID,
			Content:       text,
			ViolationType: verdict.ViolationType,
			Severity:      verdict.Severity,
			CreatedAt:     time.Now().UTC(),
		})
	}
}

func (r *run) persona(ctx context.Context) string {
	if r.o.deps.Settings != nil {
		p, err := r.o.deps.Settings.SystemPrompt(ctx)
		if err == nil && p != "" {
			return p
		}
		if err != nil {
			r.logger.Warn("failed to load system prompt, using default", "error", err)
		}
	}
	return r.o.cfg.DefaultPersona
}

func (r *run) flags(ctx context.Context) types.FeatureFlags {
	if r.o.deps.Settings == nil {
		return types.DefaultFeatureFlags()
	}
	flags, err := r.o.deps.Settings.FeatureFlags(ctx)
	if err != nil {
		r.logger.Warn("failed to load feature flags, using defaults", "error", err)
		return types.DefaultFeatureFlags()
	}
	return flags
}

func (r *run) facts(ctx context.Context) []string {
	if r.req.UserID == "" || r.o.deps.Memory == nil {
		return nil
	}
	facts, err := r.o.deps.Memory.TopFacts(ctx, r.req.UserID, r.o.cfg.MemoryTopK)
	if err != nil {
		r.logger.Warn("failed to load memory facts", "user_id", r.req.UserID, "error", err)
		return nil
	}
	if len(facts) > r.o.cfg.MemoryTopK {
		facts = facts[:r.o.cfg.MemoryTopK]
	}
	return facts
}

func (r *run) catalog(ctx context.Context) []types.CatalogEntry {
	if r.o.deps.Catalog == nil {
		return nil
	}
	entries, err := r.o.deps.Catalog.ListActiveModels(ctx)
	if err != nil {
		r.logger.Warn("failed to load model catalog", "error", err)
		return nil
	}
	return entries
}

// stream runs model steps until a final answer, the step cap or the budget.
// It returns the last non-empty text the model produced.
func (r *run) stream(parent, ctx context.Context, a assembled) (string, FinishReason, error) {
	working := make([]types.Message, len(r.req.Messages), len(r.req.Messages)+2*r.o.cfg.MaxSteps)
	copy(working, r.req.Messages)
	defs := a.toolset.Definitions()

	var lastText string
	for step := 1; step <= r.o.cfg.MaxSteps; step++ {
		if parent.Err() != nil {
			return "", "", ErrCanceled
		}
		if ctx.Err() != nil {
			r.logger.Warn("request budget exhausted", "step", r.steps)
			return lastText, FinishBudget, nil
		}
		r.steps = step

		reply, err := r.step(ctx, llm.Request{
			Model:        a.modelID,
			SystemPrompt: a.systemPrompt,
			Messages:     working,
			Tools:        defs,
			Temperature:  r.o.cfg.Temperature,
		})
		if err != nil {
			switch {
			case parent.Err() != nil || r.sinkErr != nil:
				return "", "", ErrCanceled
			case ctx.Err() != nil:
				r.logger.Warn("request budget exhausted during model call", "step", step)
				return lastText, FinishBudget, nil
			}
			return "", "", &ProviderError{Backend: r.route.Backend.Name(), Model: a.modelID, Err: err}
		}
		if reply.Text != "" {
			lastText = reply.Text
		}

		if len(reply.ToolCalls) == 0 {
			return reply.Text, FinishStop, nil
		}

		calls := ensureCallIDs(reply.ToolCalls)
		r.logger.Debug("executing tool calls", "step", step, "tool_calls", len(calls))
		results, err := r.executeTools(parent, ctx, a.toolset, calls)
		switch {
		case errors.Is(err, ErrCanceled):
			return "", "", ErrCanceled
		case errors.Is(err, errBudgetExceeded):
			r.logger.Warn("request budget exhausted during tool calls", "step", step)
			return lastText, FinishBudget, nil
		}

		working = append(working, types.Message{Role: types.RoleAssistant, Content: reply.Text, ToolCalls: calls})
		for _, res := range results {
			working = append(working, types.Message{Role: types.RoleTool, ToolCallID: res.ID, Content: res.Content()})
		}
	}

	r.logger.Warn("step cap reached without a final answer", "max_steps", r.o.cfg.MaxSteps)
	return lastText, FinishStepCap, nil
}

// step sends one model request and reports the outcome to the circuit
// breaker. Caller disconnects are not counted against the backend.
func (r *run) step(ctx context.Context, req llm.Request) (llm.Reply, error) {
	reply, err := r.route.Backend.Stream(ctx, req, func(delta string) error {
		if err := r.sink.Write(delta); err != nil {
			r.sinkErr = err
			return err
		}
		return nil
	})
	if err == nil || (ctx.Err() == nil && r.sinkErr == nil) {
		r.o.deps.Backends.Report(r.route.Family, err)
	}
	return reply, err
}

// executeTools runs every call in parallel and returns results in issue
// order. If the caller leaves or the budget runs out first, in-flight results
// are abandoned.
func (r *run) executeTools(parent, ctx context.Context, ts *tools.Toolset, calls []types.ToolCall) ([]types.ToolResult, error) {
	results := make([]types.ToolResult, len(calls))

	g := new(errgroup.Group)
	g.SetLimit(r.o.cfg.MaxParallelCall)
	done := make(chan struct{})
	go func() {
		for i, c := range calls {
			g.Go(func() error {
				results[i] = ts.Execute(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results, nil
	case <-ctx.Done():
		if parent.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, errBudgetExceeded
	}
}

// ensureCallIDs gives every call a unique id so results can be paired back.
func ensureCallIDs(calls []types.ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}

func (r *run) record(out Outcome, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrCanceled):
		status = "canceled"
	case errors.Is(err, ErrInvalidRequest):
		status = "invalid"
	case err != nil:
		status = "error"
	}

	durationMs := float64(time.Since(r.start).Milliseconds())
	r.o.deps.Metrics.RecordRequest(telemetry.RequestLabels{
		Model:        out.ModelUsed,
		Backend:      out.Backend,
		Status:       status,
		FinishReason: string(out.FinishReason),
		Steps:        out.Steps,
		DurationMs:   durationMs,
	})

	attrs := []any{
		"status", status,
		"model", out.ModelUsed,
		"backend", out.Backend,
		"steps", out.Steps,
		"finish_reason", out.FinishReason,
		"duration_ms", durationMs,
	}
	if err != nil && status == "error" {
		r.logger.Error("chat request failed", append(attrs, "error", err)...)
		return
	}
	r.logger.Info("chat request completed", attrs...)
}
