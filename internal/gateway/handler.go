// Package gateway exposes the chat service over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/aegis-chat/internal/auth"
	"github.com/af-corp/aegis-chat/internal/failure"
	"github.com/af-corp/aegis-chat/internal/httputil"
	"github.com/af-corp/aegis-chat/internal/orchestrator"
	"github.com/af-corp/aegis-chat/internal/types"
)

const maxBodyBytes = 1 << 20

// Chatter runs one chat request.
type Chatter interface {
	Run(ctx context.Context, req types.ChatRequest, sink orchestrator.Sink) (orchestrator.Outcome, error)
}

// ModelCatalog is the readable and writable model list.
type ModelCatalog interface {
	ListActiveModels(ctx context.Context) ([]types.CatalogEntry, error)
	SetModel(ctx context.Context, e types.CatalogEntry) error
}

// AdminSettings is the persona and feature flag store.
type AdminSettings interface {
	SystemPrompt(ctx context.Context) (string, error)
	FeatureFlags(ctx context.Context) (types.FeatureFlags, error)
	SetSystemPrompt(ctx context.Context, prompt string) error
	SetFeatureFlags(ctx context.Context, flags types.FeatureFlags) error
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	chat     Chatter
	catalog  ModelCatalog
	settings AdminSettings
	logger   *slog.Logger
}

func NewHandler(chat Chatter, catalog ModelCatalog, settings AdminSettings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, catalog: catalog, settings: settings, logger: logger}
}

type inboundMessage struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

type chatBody struct {
	Messages []inboundMessage `json:"messages"`
	ModelID  string           `json:"modelId"`
	Mode     string           `json:"mode"`
	Locale   string           `json:"locale"`
}

type completionResponse struct {
	Content   string `json:"content"`
	ModelUsed string `json:"modelUsed,omitempty"`
	Error     bool   `json:"error"`
}

// decodeChat builds the internal request. The user id always comes from the
// authenticated key, never from the body.
func decodeChat(r *http.Request, reqID string) (types.ChatRequest, error) {
	var body chatBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		return types.ChatRequest{}, fmt.Errorf("invalid JSON: %w", err)
	}

	mode := types.ModeChat
	if body.Mode != "" {
		m, ok := types.ParseMode(body.Mode)
		if !ok {
			return types.ChatRequest{}, fmt.Errorf("unknown mode %q", body.Mode)
		}
		mode = m
	}

	req := types.ChatRequest{
		Messages:  make([]types.Message, len(body.Messages)),
		ModelID:   strings.TrimSpace(body.ModelID),
		Mode:      mode,
		Locale:    body.Locale,
		RequestID: reqID,
	}
	for i, m := range body.Messages {
		req.Messages[i] = types.Message{Role: m.Role, Content: m.Content}
	}
	if req.Locale == "" {
		req.Locale = r.Header.Get("Accept-Language")
	}
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		req.UserID = id.UserID
	}
	return req, nil
}

// ChatCompletions handles POST /v1/chat/completions. Translated failures are
// returned as 200 with error set; only malformed requests get a 4xx.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	defer r.Body.Close()

	req, err := decodeChat(r, reqID)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	out, err := h.chat.Run(r.Context(), req, orchestrator.Discard)
	switch {
	case err == nil:
		httputil.WriteJSON(w, reqID, http.StatusOK, completionResponse{Content: out.Content, ModelUsed: out.ModelUsed})
	case errors.Is(err, orchestrator.ErrCanceled):
		h.logger.Info("client went away", "request_id", reqID)
	default:
		fe := failure.Translate(err, req.Locale)
		if fe.Category == failure.CategoryValidation {
			httputil.WriteBadRequestError(w, reqID, err.Error())
			return
		}
		httputil.WriteJSON(w, reqID, http.StatusOK, completionResponse{Content: fe.Message, ModelUsed: out.ModelUsed, Error: true})
	}
}

// Chat handles POST /v1/chat, streaming answer text as it is generated.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	defer r.Body.Close()

	req, err := decodeChat(r, reqID)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, err.Error())
		return
	}

	stream := newTextStream(w, reqID)
	_, err = h.chat.Run(r.Context(), req, stream)
	if err == nil {
		stream.start()
		return
	}
	if errors.Is(err, orchestrator.ErrCanceled) {
		h.logger.Info("client went away", "request_id", reqID, "streamed", stream.started)
		return
	}

	fe := failure.Translate(err, req.Locale)
	switch {
	case stream.started:
		// Headers are gone; the message becomes the final chunk.
		if werr := stream.Write("\n\n" + fe.Message); werr != nil {
			h.logger.Debug("failed to write final chunk", "request_id", reqID, "error", werr)
		}
	case fe.Category == failure.CategoryValidation:
		httputil.WriteBadRequestError(w, reqID, err.Error())
	case fe.Category == failure.CategorySafetyRejection:
		stream.Write(fe.Message)
	default:
		httputil.WriteChatError(w, reqID, fe.Status, string(fe.Category), fe.Message)
	}
}

type modelObject struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	IsDefault   bool   `json:"isDefault"`
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	entries, err := h.catalog.ListActiveModels(r.Context())
	if err != nil {
		h.logger.Error("failed to list models", "request_id", reqID, "error", err)
		fe := failure.Translate(err, r.Header.Get("Accept-Language"))
		httputil.WriteChatError(w, reqID, http.StatusServiceUnavailable, string(fe.Category), fe.Message)
		return
	}

	models := make([]modelObject, 0, len(entries))
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		models = append(models, modelObject{ID: e.ID, DisplayName: e.DisplayName, IsDefault: e.IsDefault})
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, map[string]any{"object": "list", "data": models})
}

type settingsBody struct {
	SystemPrompt string             `json:"systemPrompt"`
	FeatureFlags types.FeatureFlags `json:"featureFlags"`
}

// GetSettings handles GET /admin/settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	prompt, err := h.settings.SystemPrompt(r.Context())
	if err != nil {
		h.adminError(w, reqID, "read system prompt", err)
		return
	}
	flags, err := h.settings.FeatureFlags(r.Context())
	if err != nil {
		h.adminError(w, reqID, "read feature flags", err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, settingsBody{SystemPrompt: prompt, FeatureFlags: flags})
}

// PutPersona handles PUT /admin/persona.
func (h *Handler) PutPersona(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var body struct {
		SystemPrompt *string `json:"systemPrompt"`
	}
	if err := decodeStrict(r, &body); err != nil || body.SystemPrompt == nil {
		httputil.WriteBadRequestError(w, reqID, "body must be {\"systemPrompt\": string}")
		return
	}
	if err := h.settings.SetSystemPrompt(r.Context(), strings.TrimSpace(*body.SystemPrompt)); err != nil {
		h.adminError(w, reqID, "update system prompt", err)
		return
	}
	h.logger.Info("system prompt updated", "request_id", reqID, "length", len(*body.SystemPrompt))
	w.WriteHeader(http.StatusNoContent)
}

// PutFlags handles PUT /admin/flags.
func (h *Handler) PutFlags(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var flags types.FeatureFlags
	if err := decodeStrict(r, &flags); err != nil {
		httputil.WriteBadRequestError(w, reqID, "invalid feature flags: "+err.Error())
		return
	}
	if err := h.settings.SetFeatureFlags(r.Context(), flags); err != nil {
		h.adminError(w, reqID, "update feature flags", err)
		return
	}
	h.logger.Info("feature flags updated", "request_id", reqID, "flags", flags)
	w.WriteHeader(http.StatusNoContent)
}

// PutModel handles PUT /admin/models/{id}.
func (h *Handler) PutModel(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	var body struct {
		DisplayName string `json:"displayName"`
		IsActive    bool   `json:"isActive"`
		IsDefault   bool   `json:"isDefault"`
	}
	if err := decodeStrict(r, &body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "invalid model: "+err.Error())
		return
	}
	entry := types.CatalogEntry{
		ID:          chi.URLParam(r, "*"),
		DisplayName: body.DisplayName,
		IsActive:    body.IsActive,
		IsDefault:   body.IsDefault,
	}
	if entry.ID == "" {
		httputil.WriteBadRequestError(w, reqID, "model id is required")
		return
	}
	if entry.IsDefault && !entry.IsActive {
		httputil.WriteBadRequestError(w, reqID, "the default model must be active")
		return
	}
	if err := h.catalog.SetModel(r.Context(), entry); err != nil {
		h.adminError(w, reqID, "update model", err)
		return
	}
	h.logger.Info("model updated", "request_id", reqID, "model", entry.ID, "active", entry.IsActive, "default", entry.IsDefault)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminError(w http.ResponseWriter, reqID, op string, err error) {
	h.logger.Error("admin operation failed", "request_id", reqID, "op", op, "error", err)
	httputil.WriteInternalError(w, reqID, "Failed to "+op)
}

func decodeStrict(r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}
