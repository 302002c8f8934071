package middleware

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/errtrack/pkg/models"
)

type contextKey string

const (
	projectKey contextKey = "project"
	userKey    contextKey = "user"
)

// SetProject stores the project authenticated by an API key.
func SetProject(ctx context.Context, p *models.Project) context.Context {
	return context.WithValue(ctx, projectKey, p)
}

func GetProject(r *http.Request) (*models.Project, bool) {
	p, ok := r.Context().Value(projectKey).(*models.Project)
	return p, ok && p != nil
}

// SetUser stores the dashboard user authenticated by a bearer token.
func SetUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func GetUser(r *http.Request) (*models.User, bool) {
	u, ok := r.Context().Value(userKey).(*models.User)
	return u, ok && u != nil
}
