package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/aegis-chat/internal/auth"
	"github.com/af-corp/aegis-chat/internal/httputil"
	"github.com/af-corp/aegis-chat/internal/telemetry"
)

const (
	headerLimit     = "X-RateLimit-Limit-Requests"
	headerRemaining = "X-RateLimit-Remaining-Requests"
	headerReset     = "X-RateLimit-Reset-Requests"
	headerRetry     = "Retry-After"
)

// Middleware limits each API key to its per-minute quota, or defaultRPM when
// the key has none. Requests without an identity pass through.
func Middleware(limiter *Limiter, defaultRPM int, metrics *telemetry.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			rpm := defaultRPM
			if id.RPMLimit != nil {
				rpm = *id.RPMLimit
			}
			if rpm <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Check(r.Context(), "rpm:"+id.KeyID, int64(rpm), time.Minute)
			w.Header().Set(headerLimit, strconv.Itoa(rpm))
			w.Header().Set(headerRemaining, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerReset, result.ResetAt.UTC().Format(time.RFC3339))

			if !result.Allowed {
				reqID := w.Header().Get("X-Request-ID")
				logger.Warn("rate limit exceeded",
					"request_id", reqID,
					"key_id", id.KeyID,
					"user_id", id.UserID,
					"limit", rpm,
				)
				metrics.RecordRateLimitHit("rpm")
				w.Header().Set(headerRetry, strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.UTC().Format(time.RFC3339)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
