// Package assistant answers in-app help questions. A configured language model
// answers with the user's projects and current page as context; without one,
// or when it fails, a keyword responder answers instead.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

const (
	// MaxMessageLength bounds a single question.
	MaxMessageLength = 2000
	// SourceFallback marks answers produced without a model.
	SourceFallback = "fallback"

	maxTokens   = 500
	temperature = 0.7
)

// Store is the storage the assistant needs.
type Store interface {
	ListProjects(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error)
}

// Reply is one assistant answer.
type Reply struct {
	Response  string    `json:"response"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

type Service struct {
	provider models.AIProvider
	store    Store
	timeout  time.Duration
	now      func() time.Time
}

// NewService builds the assistant. provider may be nil.
func NewService(provider models.AIProvider, s Store, timeout time.Duration) *Service {
	return &Service{
		provider: provider,
		store:    s,
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Help answers message for user. Provider failures never surface to the
// caller; they fall through to the keyword responder.
func (s *Service) Help(ctx context.Context, user *models.User, message string, hc models.HelpContext) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", models.ErrInvalidInput)
	}
	if len(message) > MaxMessageLength {
		return nil, fmt.Errorf("%w: message exceeds %d bytes", models.ErrInvalidInput, MaxMessageLength)
	}

	if s.provider != nil {
		projects, err := s.store.ListProjects(ctx, user.ID)
		if err != nil {
			slog.Warn("assistant could not load projects", "user_id", user.ID, "error", err)
		}

		answer, err := s.complete(ctx, models.CompletionRequest{
			System:      SystemPrompt(hc, projects),
			Prompt:      message,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err == nil {
			metrics.AssistantRequestsTotal.WithLabelValues(s.provider.Name()).Inc()
			return &Reply{Response: answer, Source: s.provider.Name(), Timestamp: s.now()}, nil
		}
		metrics.AssistantProviderErrorsTotal.Inc()
		slog.Warn("ai provider failed, answering from keywords",
			"provider", s.provider.Name(),
			"user_id", user.ID,
			"error", err,
		)
	}

	metrics.AssistantRequestsTotal.WithLabelValues(SourceFallback).Inc()
	return &Reply{Response: FallbackAnswer(message), Source: SourceFallback, Timestamp: s.now()}, nil
}

func (s *Service) complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.provider.Complete(ctx, req)
}
