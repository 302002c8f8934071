package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/internal/cache"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
)

// RateLimit applies the per-project ingest budget.
type RateLimit struct {
	limiter cache.Limiter
}

func NewRateLimit(l cache.Limiter) *RateLimit {
	return &RateLimit{limiter: l}
}

// Limit rate-limits by the project set by RequireAPIKey. Requests without a
// project pass through, and limiter errors fail open.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project, ok := GetProject(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		d, err := rl.limiter.Allow(r.Context(), project.ID)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "project_id", project.ID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retry := int(time.Until(d.Reset).Round(time.Second).Seconds())
			if retry < 1 {
				retry = 1
			}
			metrics.RateLimitedTotal.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
