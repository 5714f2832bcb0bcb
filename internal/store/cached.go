package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/af-corp/aegis-chat/internal/cache"
	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/types"
)

const (
	cacheKeyPersona = "settings:system_prompt"
	cacheKeyFlags   = "settings:feature_flags"
	cacheKeyCatalog = "catalog:active"
)

// SettingsBackend is the uncached settings source.
type SettingsBackend interface {
	SystemPrompt(ctx context.Context) (string, error)
	FeatureFlags(ctx context.Context) (types.FeatureFlags, error)
	SetSystemPrompt(ctx context.Context, prompt string) error
	SetFeatureFlags(ctx context.Context, flags types.FeatureFlags) error
}

// CatalogBackend is the uncached catalog source.
type CatalogBackend interface {
	ListActiveModels(ctx context.Context) ([]types.CatalogEntry, error)
	SetModel(ctx context.Context, e types.CatalogEntry) error
}

// readThrough serves key from c, loading and caching it on a miss. A broken
// cache is skipped, never fatal.
func readThrough[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, name string,
	metrics *telemetry.Metrics, logger *slog.Logger, load func(context.Context) (T, error)) (T, error) {
	if raw, ok, err := c.Get(ctx, key); err != nil {
		logger.Warn("cache read failed", "key", key, "error", err)
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.RecordCacheLookup(name, true)
			return v, nil
		}
	}
	metrics.RecordCacheLookup(name, false)

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := c.Set(ctx, key, raw, ttl); err != nil {
			logger.Warn("cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}

// invalidate drops key after a successful write so the next read sees it.
func invalidate(ctx context.Context, c cache.Cache, key string, logger *slog.Logger) {
	if err := c.Delete(ctx, key); err != nil {
		logger.Error("cache invalidation failed, value stays stale until ttl", "key", key, "error", err)
	}
}

// CachedSettings fronts the settings store with a TTL cache. Writes go to
// the store first and then invalidate the cached value.
type CachedSettings struct {
	backend SettingsBackend
	cache   cache.Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewCachedSettings(backend SettingsBackend, c cache.Cache, ttl time.Duration, metrics *telemetry.Metrics, logger *slog.Logger) *CachedSettings {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSettings{backend: backend, cache: c, ttl: ttl, metrics: metrics, logger: logger}
}

func (s *CachedSettings) SystemPrompt(ctx context.Context) (string, error) {
	return readThrough(ctx, s.cache, cacheKeyPersona, s.ttl, "persona", s.metrics, s.logger, s.backend.SystemPrompt)
}

func (s *CachedSettings) FeatureFlags(ctx context.Context) (types.FeatureFlags, error) {
	return readThrough(ctx, s.cache, cacheKeyFlags, s.ttl, "flags", s.metrics, s.logger, s.backend.FeatureFlags)
}

func (s *CachedSettings) SetSystemPrompt(ctx context.Context, prompt string) error {
	if err := s.backend.SetSystemPrompt(ctx, prompt); err != nil {
		return err
	}
	invalidate(ctx, s.cache, cacheKeyPersona, s.logger)
	return nil
}

func (s *CachedSettings) SetFeatureFlags(ctx context.Context, flags types.FeatureFlags) error {
	if err := s.backend.SetFeatureFlags(ctx, flags); err != nil {
		return err
	}
	invalidate(ctx, s.cache, cacheKeyFlags, s.logger)
	return nil
}

// CachedCatalog fronts the model catalog with a TTL cache.
type CachedCatalog struct {
	backend CatalogBackend
	cache   cache.Cache
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewCachedCatalog(backend CatalogBackend, c cache.Cache, ttl time.Duration, metrics *telemetry.Metrics, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCatalog{backend: backend, cache: c, ttl: ttl, metrics: metrics, logger: logger}
}

func (c *CachedCatalog) ListActiveModels(ctx context.Context) ([]types.CatalogEntry, error) {
	return readThrough(ctx, c.cache, cacheKeyCatalog, c.ttl, "catalog", c.metrics, c.logger, c.backend.ListActiveModels)
}

func (c *CachedCatalog) SetModel(ctx context.Context, e types.CatalogEntry) error {
	if err := c.backend.SetModel(ctx, e); err != nil {
		return err
	}
	invalidate(ctx, c.cache, cacheKeyCatalog, c.logger)
	return nil
}
