package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-chat/internal/auth"
	"github.com/af-corp/aegis-chat/internal/cache"
	"github.com/af-corp/aegis-chat/internal/config"
	"github.com/af-corp/aegis-chat/internal/gateway"
	"github.com/af-corp/aegis-chat/internal/httputil"
	"github.com/af-corp/aegis-chat/internal/orchestrator"
	"github.com/af-corp/aegis-chat/internal/ratelimit"
	"github.com/af-corp/aegis-chat/internal/router"
	"github.com/af-corp/aegis-chat/internal/safety"
	"github.com/af-corp/aegis-chat/internal/store"
	"github.com/af-corp/aegis-chat/internal/telemetry"
	"github.com/af-corp/aegis-chat/internal/tools"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (chat will run with default persona and no memory)", "error", err)
	} else {
		logger.Info("database connected")
	}

	rdb := connectRedis(cfg.Redis, logger)
	var sharedCache cache.Cache = cache.NewMemory(nil)
	if rdb != nil {
		sharedCache = cache.NewRedis(rdb)
		defer rdb.Close()
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	backends, err := router.BuildFromConfig(loader.Backends())
	if err != nil {
		logger.Error("failed to build model backends", "error", err)
		os.Exit(1)
	}

	filter := safety.NewFilter(safety.TermsFromConfig(loader.Safety()))
	loader.OnReload(func() {
		filter.SetTerms(safety.TermsFromConfig(loader.Safety()))
		next, err := router.BuildFromConfig(loader.Backends())
		if err != nil {
			logger.Error("backend reload failed, keeping current backends", "error", err)
			return
		}
		backends.Reload(next)
		logger.Info("safety terms and backends reloaded")
	})

	auditor := safety.NewAuditor(store.NewSecurityLogStore(dbPool), safety.AuditorOptions{
		QueueSize: cfg.Chat.AuditQueueSize,
		Timeout:   cfg.Chat.AuditTimeout,
		Metrics:   metrics,
		Logger:    logger,
	})

	memory := store.NewMemoryStore(dbPool)
	settings := store.NewCachedSettings(store.NewSettingsStore(dbPool), sharedCache, cfg.Chat.PersonaTTL, metrics, logger)
	catalog := store.NewCachedCatalog(store.NewCatalogStore(dbPool), sharedCache, cfg.Chat.CatalogTTL, metrics, logger)

	orch := orchestrator.New(orchestrator.Config{
		MaxSteps:       cfg.Chat.MaxSteps,
		Budget:         cfg.Chat.RequestBudget,
		Temperature:    cfg.Chat.Temperature,
		MemoryTopK:     cfg.Chat.MemoryTopK,
		FallbackModel:  cfg.Chat.FallbackModel,
		DefaultPersona: cfg.Chat.DefaultPersona,
	}, orchestrator.Deps{
		Filter:   filter,
		Auditor:  auditor,
		Memory:   memory,
		Catalog:  catalog,
		Settings: settings,
		Tools:    buildTools(cfg.Tools, memory, dbPool, metrics, logger),
		Backends: backends,
		Metrics:  metrics,
		Logger:   logger,
	})

	handler := gateway.NewHandler(orch, catalog, settings, logger)
	keyStore := auth.NewCachedKeyStore(dbPool, sharedCache, logger)
	limiter := ratelimit.NewLimiter(rdb, logger)
	defaultRPM := 0
	if cfg.RateLimit.Enabled {
		defaultRPM = cfg.RateLimit.RequestsPerMinute
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, "", http.StatusOK, map[string]any{
			"status":   "healthy",
			"version":  version,
			"backends": backends.Status(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore, logger))
		r.Use(ratelimit.Middleware(limiter, defaultRPM, metrics, logger))
		r.Post("/v1/chat", handler.Chat)
		r.Post("/v1/chat/completions", handler.ChatCompletions)
		r.Get("/v1/models", handler.ListModels)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/settings", handler.GetSettings)
			r.Put("/persona", handler.PutPersona)
			r.Put("/flags", handler.PutFlags)
			r.Put("/models/*", handler.PutModel)
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatd starting", "addr", addr, "version", version, "backends", backends.Status())
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := auditor.Close(ctx); err != nil {
		logger.Warn("security log queue not drained", "error", err)
	}
	logger.Info("chatd stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func connectRedis(cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addresses[0],
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis not reachable (in-process cache, rate limiting disabled)", "error", err)
		rdb.Close()
		return nil
	}
	logger.Info("redis connected")
	return rdb
}

// buildTools wires every tool whose backing service is configured. Tools
// without configuration are left out of the registry.
func buildTools(cfg config.ToolsConfig, memory *store.MemoryStore, db store.DB, metrics *telemetry.Metrics, logger *slog.Logger) *tools.Registry {
	deps := tools.Dependencies{
		Webpages: tools.NewHTTPPageReader(cfg.Webpage),
		Memory:   memory,
		Orders:   store.NewOrderStore(db),
		Websites: store.NewWebsiteStore(db),
		Metrics:  metrics,
		Logger:   logger,
	}
	if s, err := tools.NewHTTPSearcher(cfg.Search); err != nil {
		logger.Warn("web_search disabled", "error", err)
	} else {
		deps.Search = s
	}
	if img, err := tools.NewOpenAIImages(cfg.Image); err != nil {
		logger.Warn("generate_image disabled", "error", err)
	} else {
		deps.Images = img
	}
	return tools.NewRegistry(deps)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
