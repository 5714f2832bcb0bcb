package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/llm"
)

type fakeBackend struct{ name string }

func (f *fakeBackend) Name() string { return f.name }
func (f *fakeBackend) Stream(context.Context, llm.Request, llm.DeltaFunc) (llm.Reply, error) {
	return llm.Reply{}, nil
}

func TestRegistry_RouteByFamily(t *testing.T) {
	r := NewRegistry(NewHealthTracker(3, time.Minute))
	r.Register(FamilyAggregator, &fakeBackend{name: "openrouter"})
	r.Register(FamilyLocal, &fakeBackend{name: "ollama"})

	route, err := r.Route("openai/gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Backend.Name() != "openrouter" || route.Family != FamilyAggregator {
		t.Errorf("expected aggregator route, got %+v", route)
	}

	route, err = r.Route("llama3.1:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.Backend.Name() != "ollama" || route.ModelID != "llama3.1:8b" {
		t.Errorf("expected local route, got %+v", route)
	}
}

func TestRegistry_MissingBackend(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(FamilyLocal, &fakeBackend{name: "ollama"})

	_, err := r.Route("openai/gpt-4o-mini")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestRegistry_OpenCircuit(t *testing.T) {
	r := NewRegistry(NewHealthTracker(2, time.Minute))
	r.Register(FamilyAggregator, &fakeBackend{name: "openrouter"})

	r.Report(FamilyAggregator, errors.New("timeout"))
	if _, err := r.Route("a/b"); err != nil {
		t.Fatalf("expected route after one failure, got %v", err)
	}
	r.Report(FamilyAggregator, errors.New("timeout"))

	_, err := r.Route("a/b")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable with open circuit, got %v", err)
	}
}

func TestBuildFromConfig(t *testing.T) {
	cfg := config.DefaultBackendsConfig()

	r, err := BuildFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.Get(FamilyAggregator); ok {
		t.Error("expected no aggregator without api key")
	}
	if b, ok := r.Get(FamilyLocal); !ok || b.Name() != "ollama" {
		t.Error("expected local backend from default config")
	}

	cfg.Aggregator.APIKey = "sk-or-test"
	r, err = BuildFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, ok := r.Get(FamilyAggregator); !ok || b.Name() != "openrouter" {
		t.Error("expected aggregator backend with api key")
	}
}

func TestRegistry_Status(t *testing.T) {
	r := NewRegistry(NewHealthTracker(1, time.Minute))
	r.Register(FamilyAggregator, &fakeBackend{name: "openrouter"})
	r.Register(FamilyLocal, &fakeBackend{name: "ollama"})
	r.Report(FamilyLocal, errors.New("connection refused"))

	status := r.Status()
	if status["aggregator"] != "closed" || status["local"] != "open" {
		t.Errorf("unexpected status: %v", status)
	}
}

func TestRegistry_ReloadKeepsCircuitState(t *testing.T) {
	r := NewRegistry(NewHealthTracker(1, time.Minute))
	r.Register(FamilyAggregator, &fakeBackend{name: "old"})
	r.Report(FamilyAggregator, errors.New("timeout"))

	next := NewRegistry(nil)
	next.Register(FamilyAggregator, &fakeBackend{name: "new"})
	next.Register(FamilyLocal, &fakeBackend{name: "ollama"})
	r.Reload(next)

	if b, _ := r.Get(FamilyAggregator); b.Name() != "new" {
		t.Errorf("expected reloaded backend, got %s", b.Name())
	}
	if _, err := r.Route("a/b"); !errors.Is(err, ErrBackendUnavailable) {
		t.Error("expected open circuit to survive reload")
	}
	if _, err := r.Route("llama3.1"); err != nil {
		t.Errorf("expected new local backend, got %v", err)
	}
}
