package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/aegis-chat/internal/httputil"
)

// Middleware authenticates requests by Bearer key and stores the caller's
// Identity in the request context.
func Middleware(keys KeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteAuthError(w, reqID, "Missing Authorization header. Use: Authorization: Bearer <api-key>")
				return
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httputil.WriteAuthError(w, reqID, "Invalid Authorization format. Use: Authorization: Bearer <api-key>")
				return
			}
			token = strings.TrimSpace(token)
			if token == "" {
				httputil.WriteAuthError(w, reqID, "Empty API key")
				return
			}

			meta, err := keys.Lookup(r.Context(), HashKey(token))
			if err != nil {
				logger.Error("key lookup failed", "request_id", reqID, "key_prefix", KeyPrefix(token), "error", err)
				httputil.WriteInternalError(w, reqID, "Internal error during authentication")
				return
			}
			if meta == nil {
				logger.Warn("auth failed: key not found", "request_id", reqID, "key_prefix", KeyPrefix(token))
				httputil.WriteAuthError(w, reqID, "Invalid API key")
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{
				KeyID:    meta.ID,
				UserID:   meta.UserID,
				Admin:    meta.Admin,
				RPMLimit: meta.RPMLimit,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose key is not an admin key. It must run
// after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok || !id.Admin {
			httputil.WriteForbiddenError(w, w.Header().Get("X-Request-ID"), "Admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
