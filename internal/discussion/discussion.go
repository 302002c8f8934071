// Package discussion stores comments on error groups.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

// MaxContentLength bounds a single comment.
const MaxContentLength = 10000

// Store is the storage the discussion service needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetErrorGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error)
	CreateComment(ctx context.Context, comment *models.ErrorComment) error
	ListComments(ctx context.Context, groupID uuid.UUID, includeInternal bool) ([]*models.ErrorComment, error)
}

// Notifier is told about every stored comment.
type Notifier interface {
	OnComment(ctx context.Context, group *models.ErrorGroup, comment *models.ErrorComment, actorName string) error
}

type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewService(s Store, n Notifier) *Service {
	return &Service{store: s, notifier: n, now: func() time.Time { return time.Now().UTC() }}
}

// Add stores a comment by authorID on groupID. Content is trimmed and must
// not be empty. The group must exist.
func (s *Service) Add(ctx context.Context, groupID, authorID uuid.UUID, content string, isInternal bool) (*models.ErrorComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", models.ErrInvalidInput)
	}
	if len(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content exceeds %d bytes", models.ErrInvalidInput, MaxContentLength)
	}

	group, err := s.store.GetErrorGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get error group: %w", err)
	}

	comment := &models.ErrorComment{
		ID:           uuid.New(),
		ErrorGroupID: groupID,
		AuthorID:     authorID,
		Content:      content,
		IsInternal:   isInternal,
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateComment(ctx, comment); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}

	if s.notifier != nil && !isInternal {
		name := ""
		if author, err := s.store.GetUser(ctx, authorID); err == nil {
			name = author.Name
		}
		if err := s.notifier.OnComment(ctx, group, comment, name); err != nil {
			slog.Warn("comment notification failed", "group_id", groupID, "error", err)
		}
	}

	return comment, nil
}

// List returns the comments on groupID oldest first. Internal comments are
// only included for elevated roles.
func (s *Service) List(ctx context.Context, groupID uuid.UUID, role models.Role) ([]*models.ErrorComment, error) {
	comments, err := s.store.ListComments(ctx, groupID, role.IsElevated())
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []*models.ErrorComment{}
	}
	return comments, nil
}
