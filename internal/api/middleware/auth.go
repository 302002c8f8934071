package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/errtrack/internal/api/response"
	"github.com/kiranshivaraju/errtrack/internal/auth"
	"github.com/kiranshivaraju/errtrack/internal/cache"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

const (
	methodAPIKey = "api_key"
	methodJWT    = "jwt"
)

// ProjectLookup finds candidate projects by API key prefix.
type ProjectLookup interface {
	GetProjectsByKeyPrefix(ctx context.Context, prefix string) ([]*models.Project, error)
}

// TokenValidator validates dashboard bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth authenticates SDK requests by project API key and dashboard requests
// by JWT.
type Auth struct {
	projects ProjectLookup
	tokens   TokenValidator
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewAuth creates the auth middleware. c may be nil, in which case every
// API key is verified against the store.
func NewAuth(projects ProjectLookup, tokens TokenValidator, c cache.Cache, cacheTTL time.Duration) *Auth {
	return &Auth{projects: projects, tokens: tokens, cache: c, cacheTTL: cacheTTL}
}

// RequireAPIKey resolves the project from X-API-Key, "Authorization: Bearer"
// or "Authorization: ApiKey" and stores it in the request context.
func (a *Auth) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractAPIKey(r)
		if rawKey == "" {
			metrics.AuthAttemptsTotal.WithLabelValues(methodAPIKey, "failure").Inc()
			response.Error(w, http.StatusUnauthorized,
				"INVALID_API_KEY", "Missing API key", nil)
			return
		}

		project, err := a.resolveProject(r.Context(), rawKey)
		if err != nil {
			slog.Error("api key lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}
		if project == nil {
			metrics.AuthAttemptsTotal.WithLabelValues(methodAPIKey, "failure").Inc()
			response.Error(w, http.StatusUnauthorized,
				"INVALID_API_KEY", "Invalid API key", nil)
			return
		}

		metrics.AuthAttemptsTotal.WithLabelValues(methodAPIKey, "success").Inc()
		next.ServeHTTP(w, r.WithContext(SetProject(r.Context(), project)))
	})
}

// resolveProject returns nil, nil when no project owns rawKey.
func (a *Auth) resolveProject(ctx context.Context, rawKey string) (*models.Project, error) {
	prefix, ok := auth.LookupPrefix(rawKey)
	if !ok {
		return nil, nil
	}

	cacheKey := cache.ProjectByAPIKeyKey(rawKey)
	if a.cache != nil {
		if p := a.cachedProject(ctx, cacheKey); p != nil {
			return p, nil
		}
	}

	candidates, err := a.projects.GetProjectsByKeyPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, p := range candidates {
		if !auth.VerifyAPIKey(p.APIKeyHash, rawKey) {
			continue
		}
		if a.cache != nil {
			if b, err := json.Marshal(p); err == nil {
				if err := a.cache.Set(ctx, cacheKey, b, a.cacheTTL); err != nil {
					slog.Warn("failed to cache api key project", "project_id", p.ID, "error", err)
				}
			}
		}
		return p, nil
	}
	return nil, nil
}

func (a *Auth) cachedProject(ctx context.Context, key string) *models.Project {
	b, found, err := a.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("api key cache unavailable", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	var p models.Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil
	}
	return &p
}

// RequireUser validates the bearer JWT and stores the user in the request context.
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			metrics.AuthAttemptsTotal.WithLabelValues(methodJWT, "failure").Inc()
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		claims, err := a.tokens.ValidateToken(token)
		if err != nil {
			metrics.AuthAttemptsTotal.WithLabelValues(methodJWT, "failure").Inc()
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}
		user, err := claims.Principal()
		if err != nil {
			metrics.AuthAttemptsTotal.WithLabelValues(methodJWT, "failure").Inc()
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid token subject", nil)
			return
		}

		metrics.AuthAttemptsTotal.WithLabelValues(methodJWT, "success").Inc()
		next.ServeHTTP(w, r.WithContext(SetUser(r.Context(), user)))
	})
}

// RequireAdmin rejects users without an elevated role. It must run after RequireUser.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := GetUser(r)
		if !ok || !user.Role.IsElevated() {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	scheme, value, ok := splitAuthorization(r)
	if !ok {
		return ""
	}
	if strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "ApiKey") {
		return value
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	scheme, value, ok := splitAuthorization(r)
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return value
}

func splitAuthorization(r *http.Request) (scheme, value string, ok bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	value = strings.TrimSpace(parts[1])
	return parts[0], value, value != ""
}
