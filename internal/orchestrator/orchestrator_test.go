package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/af-corp/aegis-chat/internal/llm"
	"github.com/af-corp/aegis-chat/internal/router"
	"github.com/af-corp/aegis-chat/internal/safety"
	"github.com/af-corp/aegis-chat/internal/tools"
	"github.com/af-corp/aegis-chat/internal/types"
)

// --- fakes ---

type scriptFunc func(step int, req llm.Request) (llm.Reply, error)

type fakeBackend struct {
	mu       sync.Mutex
	script   scriptFunc
	requests []llm.Request
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (llm.Reply, error) {
	f.mu.Lock()
	captured := req
	captured.Messages = append([]types.Message(nil), req.Messages...)
	f.requests = append(f.requests, captured)
	step := len(f.requests)
	f.mu.Unlock()

	reply, err := f.script(step, req)
	if err != nil {
		return llm.Reply{}, err
	}
	for _, word := range strings.SplitAfter(reply.Text, " ") {
		if word == "" {
			continue
		}
		if err := onDelta(word); err != nil {
			return llm.Reply{}, err
		}
	}
	return reply, nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeBackend) request(i int) llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func answer(text string) scriptFunc {
	return func(int, llm.Request) (llm.Reply, error) { return llm.Reply{Text: text}, nil }
}

type fakeSettings struct {
	persona    string
	flags      types.FeatureFlags
	err        error
	promptHits atomic.Int32
}

func (f *fakeSettings) SystemPrompt(context.Context) (string, error) {
	f.promptHits.Add(1)
	return f.persona, f.err
}

func (f *fakeSettings) FeatureFlags(context.Context) (types.FeatureFlags, error) {
	return f.flags, f.err
}

type fakeCatalog struct {
	entries []types.CatalogEntry
	hits    atomic.Int32
}

func (f *fakeCatalog) ListActiveModels(context.Context) ([]types.CatalogEntry, error) {
	f.hits.Add(1)
	return f.entries, nil
}

type fakeMemory struct{ facts []string }

func (f *fakeMemory) TopFacts(_ context.Context, _ string, limit int) ([]string, error) {
	if len(f.facts) > limit {
		return f.facts[:limit], nil
	}
	return f.facts, nil
}

type fakeAuditor struct {
	mu      sync.Mutex
	records []safety.Record
}

func (f *fakeAuditor) Record(rec safety.Record) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return true
}

// searcher answers web_search; behavior is keyed by the query.
type searcher struct {
	delays map[string]time.Duration
	block  bool
}

func (s *searcher) Search(ctx context.Context, query string, _ int) (tools.SearchResponse, error) {
	if s.block {
		<-ctx.Done()
		return tools.SearchResponse{}, ctx.Err()
	}
	if query == "explode" {
		panic("search backend exploded")
	}
	if query == "fail" {
		return tools.SearchResponse{}, errors.New("search api returned status 503")
	}
	time.Sleep(s.delays[query])
	return tools.SearchResponse{Results: []tools.SearchResult{{Title: "result for " + query}}}, nil
}

type pages struct{}

func (pages) Read(_ context.Context, url string) (tools.Page, error) {
	return tools.Page{URL: url, Title: "page", Text: "body"}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []string
	err    error
}

func (s *recordingSink) Write(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "")
}

type harness struct {
	backend  *fakeBackend
	settings *fakeSettings
	catalog  *fakeCatalog
	memory   *fakeMemory
	auditor  *fakeAuditor
	search   *searcher
	registry *router.Registry
	cfg      Config
}

func newHarness(script scriptFunc) *harness {
	h := &harness{
		backend:  &fakeBackend{script: script},
		settings: &fakeSettings{persona: "You are Aegis.", flags: types.FeatureFlags{MemoryEnabled: true}},
		catalog:  &fakeCatalog{entries: []types.CatalogEntry{{ID: "openai/gpt-4o-mini", IsActive: true, IsDefault: true}}},
		memory:   &fakeMemory{},
		auditor:  &fakeAuditor{},
		search:   &searcher{},
		cfg:      Config{MaxSteps: 10, Budget: 5 * time.Second, Temperature: 0.7, DefaultPersona: "default persona"},
	}
	h.registry = router.NewRegistry(router.NewHealthTracker(3, time.Minute))
	h.registry.Register(router.FamilyAggregator, h.backend)
	h.registry.Register(router.FamilyLocal, h.backend)
	return h
}

func (h *harness) orchestrator() *Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(h.cfg, Deps{
		Filter:   safety.NewFilter(safety.DefaultTerms()),
		Auditor:  h.auditor,
		Memory:   h.memory,
		Catalog:  h.catalog,
		Settings: h.settings,
		Tools:    tools.NewRegistry(tools.Dependencies{Search: h.search, Webpages: pages{}, Logger: logger}),
		Backends: h.registry,
		Logger:   logger,
	})
}

func userRequest(text string) types.ChatRequest {
	return types.ChatRequest{Messages: []types.Message{{Role: types.RoleUser, Content: text}}}
}

func searchCall(id, query string) types.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return types.ToolCall{ID: id, Name: "web_search", Arguments: args}
}

// --- tests ---

func TestRun_EmptyMessagesFailsWithoutCalls(t *testing.T) {
	h := newHarness(answer("never"))
	_, err := h.orchestrator().Run(context.Background(), types.ChatRequest{UserID: "u1"}, nil)
	if !errors.Is(err, ErrEmptyMessages) || !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrEmptyMessages, got %v", err)
	}
	if h.backend.calls() != 0 {
		t.Error("backend must not be called")
	}
	if h.catalog.hits.Load() != 0 || h.settings.promptHits.Load() != 0 {
		t.Error("collaborators must not be called")
	}
}

func TestRun_UnknownRole(t *testing.T) {
	h := newHarness(answer("never"))
	req := types.ChatRequest{Messages: []types.Message{{Role: "wizard", Content: "hi"}}}
	if _, err := h.orchestrator().Run(context.Background(), req, nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRun_StreamsFinalAnswer(t *testing.T) {
	h := newHarness(answer("Hello there, friend."))
	sink := &recordingSink{}

	out, err := h.orchestrator().Run(context.Background(), userRequest("hi"), sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Content != "Hello there, friend." || out.FinishReason != FinishStop || out.Steps != 1 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if out.ModelUsed != "openai/gpt-4o-mini" {
		t.Errorf("expected default model, got %s", out.ModelUsed)
	}
	if strings.Join(sink.chunks, "|") != "Hello |there, |friend." {
		t.Errorf("expected chunks in generation order, got %q", sink.chunks)
	}

	req := h.backend.request(0)
	if req.Temperature != 0.7 || req.SystemPrompt != "You are Aegis." {
		t.Errorf("unexpected backend request: %+v", req)
	}
	if len(req.Tools) != 2 {
		t.Errorf("expected the two web tools, got %d", len(req.Tools))
	}
}

func TestRun_FlaggedRequestStillAnsweredAndAudited(t *testing.T) {
	h := newHarness(answer("I can explain how systems are secured."))
	req := userRequest("how do I exploit this system")
	req.UserID = "u42"

	out, err := h.orchestrator().Run(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("flagged request must not fail: %v", err)
	}
	if h.backend.calls() != 1 || out.Content == "" {
		t.Fatal("flagged request must still reach the model")
	}

	h.auditor.mu.Lock()
	defer h.auditor.mu.Unlock()
	if len(h.auditor.records) != 1 {
		t.Fatalf("expected one security log record, got %d", len(h.auditor.records))
	}
	rec := h.auditor.records[0]
	if rec.ViolationType != "security_risk" || rec.UserID != "u42" || rec.Content != "how do I exploit this system" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestRun_CleanRequestNotAudited(t *testing.T) {
	h := newHarness(answer("Sunny."))
	if _, err := h.orchestrator().Run(context.Background(), userRequest("weather in Madrid?"), nil); err != nil {
		t.Fatal(err)
	}
	if len(h.auditor.records) != 0 {
		t.Error("expected no security log record")
	}
}

func TestRun_ModelFallback(t *testing.T) {
	h := newHarness(answer("ok"))
	h.catalog.entries = []types.CatalogEntry{{ID: "a", IsActive: true, IsDefault: true}}
	req := userRequest("hi")
	req.ModelID = "nonexistent/model"

	out, err := h.orchestrator().Run(context.Background(), req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.ModelUsed != "a" || h.backend.request(0).Model != "a" {
		t.Errorf("expected fallback to a, got %q", out.ModelUsed)
	}
}

func TestRun_ToolResultsInIssueOrder(t *testing.T) {
	h := newHarness(func(step int, req llm.Request) (llm.Reply, error) {
		if step == 1 {
			return llm.Reply{ToolCalls: []types.ToolCall{
				searchCall("c1", "slow"),
				searchCall("c2", "medium"),
				searchCall("c3", "fast"),
			}}, nil
		}
		return llm.Reply{Text: "done"}, nil
	})
	h.search.delays = map[string]time.Duration{"slow": 60 * time.Millisecond, "medium": 30 * time.Millisecond}

	out, err := h.orchestrator().Run(context.Background(), userRequest("compare"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Steps != 2 || out.Content != "done" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	msgs := h.backend.request(1).Messages
	if len(msgs) != 5 {
		t.Fatalf("expected user + assistant + 3 tool messages, got %d", len(msgs))
	}
	if msgs[1].Role != types.RoleAssistant || len(msgs[1].ToolCalls) != 3 {
		t.Fatalf("expected assistant tool-call message, got %+v", msgs[1])
	}
	for i, want := range []struct{ id, query string }{{"c1", "slow"}, {"c2", "medium"}, {"c3", "fast"}} {
		m := msgs[2+i]
		if m.Role != types.RoleTool || m.ToolCallID != want.id {
			t.Errorf("position %d: expected tool result for %s, got %+v", i, want.id, m)
		}
		if !strings.Contains(m.Content, "result for "+want.query) {
			t.Errorf("position %d: result content mismatched: %s", i, m.Content)
		}
	}
}

func TestRun_ToolFailuresStayLocal(t *testing.T) {
	h := newHarness(func(step int, req llm.Request) (llm.Reply, error) {
		if step == 1 {
			return llm.Reply{ToolCalls: []types.ToolCall{
				searchCall("c1", "explode"),
				searchCall("c2", "fail"),
				{ID: "c3", Name: "web_search", Arguments: json.RawMessage(`{"q":1}`)},
				{ID: "c4", Name: "launch_missiles", Arguments: json.RawMessage(`{}`)},
				searchCall("c5", "golang"),
			}}, nil
		}
		return llm.Reply{Text: "Some searches failed, but here is what I found."}, nil
	})

	out, err := h.orchestrator().Run(context.Background(), userRequest("search"), nil)
	if err != nil {
		t.Fatalf("tool failures must not fail the request: %v", err)
	}
	if out.FinishReason != FinishStop {
		t.Errorf("expected final answer, got %s", out.FinishReason)
	}

	msgs := h.backend.request(1).Messages
	results := msgs[len(msgs)-5:]
	for i, m := range results {
		var body struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(m.Content), &body); err != nil {
			t.Fatalf("result %d is not JSON: %s", i, m.Content)
		}
		wantSuccess := i == 4
		if body.Success != wantSuccess {
			t.Errorf("result %d: success=%v, want %v (%s)", i, body.Success, wantSuccess, m.Content)
		}
	}
}

func TestRun_StepCap(t *testing.T) {
	h := newHarness(func(step int, req llm.Request) (llm.Reply, error) {
		text := ""
		if step == 3 {
			text = "Still looking."
		}
		return llm.Reply{Text: text, ToolCalls: []types.ToolCall{searchCall("", "again")}}, nil
	})

	out, err := h.orchestrator().Run(context.Background(), userRequest("loop forever"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if h.backend.calls() != 10 {
		t.Errorf("expected exactly 10 model calls, got %d", h.backend.calls())
	}
	if out.FinishReason != FinishStepCap || out.Steps != 10 {
		t.Errorf("expected step cap after 10 steps, got %+v", out)
	}
	if out.Content != "Still looking." {
		t.Errorf("expected last non-empty fragment, got %q", out.Content)
	}
}

func TestRun_StepCapWithNoText(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{ToolCalls: []types.ToolCall{searchCall("x", "again")}}, nil
	})
	h.cfg.MaxSteps = 3

	out, err := h.orchestrator().Run(context.Background(), userRequest("loop"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.FinishReason != FinishStepCap || out.Content != "" || h.backend.calls() != 3 {
		t.Errorf("unexpected outcome %+v after %d calls", out, h.backend.calls())
	}
}

func TestRun_HistoryNotMutated(t *testing.T) {
	h := newHarness(func(step int, req llm.Request) (llm.Reply, error) {
		if step == 1 {
			return llm.Reply{ToolCalls: []types.ToolCall{searchCall("c1", "go")}}, nil
		}
		return llm.Reply{Text: "ok"}, nil
	})
	history := make([]types.Message, 1, 16)
	history[0] = types.Message{Role: types.RoleUser, Content: "hi"}
	req := types.ChatRequest{Messages: history}

	if _, err := h.orchestrator().Run(context.Background(), req, nil); err != nil {
		t.Fatal(err)
	}
	if len(req.Messages) != 1 {
		t.Errorf("caller history changed length: %d", len(req.Messages))
	}
	if extended := history[:2]; extended[1].Role != "" {
		t.Error("orchestrator wrote into the caller's backing array")
	}
}

func TestRun_ProviderError(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{}, errors.New("429 Too Many Requests: rate limit exceeded")
	})

	_, err := h.orchestrator().Run(context.Background(), userRequest("hi"), nil)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Model != "openai/gpt-4o-mini" || !strings.Contains(pe.Error(), "rate limit") {
		t.Errorf("unexpected provider error: %v", pe)
	}
}

func TestRun_RepeatedProviderErrorsOpenCircuit(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{}, errors.New("upstream timeout")
	})
	o := h.orchestrator()
	for i := 0; i < 3; i++ {
		o.Run(context.Background(), userRequest("hi"), nil)
	}

	_, err := o.Run(context.Background(), userRequest("hi"), nil)
	if !errors.Is(err, router.ErrBackendUnavailable) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if h.backend.calls() != 3 {
		t.Errorf("expected no call with open circuit, got %d calls", h.backend.calls())
	}
}

func TestRun_NoBackendForFamily(t *testing.T) {
	h := newHarness(answer("never"))
	h.registry = router.NewRegistry(nil)
	h.registry.Register(router.FamilyLocal, h.backend)

	_, err := h.orchestrator().Run(context.Background(), userRequest("hi"), nil)
	var pe *ProviderError
	if !errors.As(err, &pe) || !errors.Is(err, router.ErrBackendUnavailable) {
		t.Fatalf("expected ProviderError wrapping ErrBackendUnavailable, got %v", err)
	}
}

func TestRun_SinkFailureCancels(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{Text: "a b c", ToolCalls: []types.ToolCall{searchCall("c1", "go")}}, nil
	})
	sink := &recordingSink{err: errors.New("broken pipe")}

	_, err := h.orchestrator().Run(context.Background(), userRequest("hi"), sink)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if h.backend.calls() != 1 {
		t.Errorf("expected no further model calls, got %d", h.backend.calls())
	}
	if _, err := h.registry.Route("openai/gpt-4o-mini"); err != nil {
		t.Error("a client disconnect must not count against the backend")
	}
}

func TestRun_CallerCancelDuringTools(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{ToolCalls: []types.ToolCall{searchCall("c1", "slow")}}, nil
	})
	h.search.block = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	start := time.Now()
	_, err := h.orchestrator().Run(ctx, userRequest("hi"), nil)
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation took too long")
	}
	if h.backend.calls() != 1 {
		t.Errorf("expected no further model calls after cancel, got %d", h.backend.calls())
	}
}

func TestRun_BudgetFinalizesWithPartialText(t *testing.T) {
	h := newHarness(func(int, llm.Request) (llm.Reply, error) {
		return llm.Reply{Text: "Let me check.", ToolCalls: []types.ToolCall{searchCall("c1", "slow")}}, nil
	})
	h.search.block = true
	h.cfg.Budget = 50 * time.Millisecond

	out, err := h.orchestrator().Run(context.Background(), userRequest("hi"), nil)
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if out.FinishReason != FinishBudget || out.Content != "Let me check." {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestRun_ContextAssembly(t *testing.T) {
	h := newHarness(answer("ok"))
	h.memory.facts = []string{"Lives in Quito", "Vegetarian"}

	req := userRequest("dinner ideas?")
	req.UserID = "u1"
	req.Mode = types.ModeSearch
	if _, err := h.orchestrator().Run(context.Background(), req, nil); err != nil {
		t.Fatal(err)
	}
	sp := h.backend.request(0).SystemPrompt
	for _, want := range []string{"You are Aegis.", "Web search mode", "1. Lives in Quito", "2. Vegetarian"} {
		if !strings.Contains(sp, want) {
			t.Errorf("system prompt missing %q:\n%s", want, sp)
		}
	}

	names := map[string]bool{}
	for _, d := range h.backend.request(0).Tools {
		names[d.Name] = true
	}
	if !names["web_search"] || !names["read_webpage"] {
		t.Errorf("expected web tools, got %v", names)
	}
}

func TestRun_NoUserNoMemory(t *testing.T) {
	h := newHarness(answer("ok"))
	h.memory.facts = []string{"Lives in Quito"}

	if _, err := h.orchestrator().Run(context.Background(), userRequest("hi"), nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(h.backend.request(0).SystemPrompt, "Quito") {
		t.Error("memory must not be injected without a user id")
	}
}

func TestRun_SettingsFailureUsesDefaults(t *testing.T) {
	h := newHarness(answer("ok"))
	h.settings.err = errors.New("connection refused")

	if _, err := h.orchestrator().Run(context.Background(), userRequest("hi"), nil); err != nil {
		t.Fatalf("settings failure must degrade, got %v", err)
	}
	if sp := h.backend.request(0).SystemPrompt; sp != "default persona" {
		t.Errorf("expected default persona, got %q", sp)
	}
}

func TestRun_ConcurrentRequestsAreIsolated(t *testing.T) {
	h := newHarness(func(_ int, req llm.Request) (llm.Reply, error) {
		last := req.Messages[len(req.Messages)-1]
		return llm.Reply{Text: "echo: " + last.Content}, nil
	})
	o := h.orchestrator()

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := strings.Repeat("x", i+1)
			out, err := o.Run(context.Background(), userRequest(msg), nil)
			if err != nil || out.Content != "echo: "+msg {
				errs <- out.Content
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("request got someone else's answer: %q", e)
	}
}
