// Package triage serves the read and triage side of error groups: filtered
// listing, detail, status and assignment updates, the dashboard, and
// administrative deletion.
package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	// DetailOccurrences caps the occurrences returned with a group.
	DetailOccurrences = 50
	// RecentErrors is the size of the dashboard's recent list.
	RecentErrors = 5
)

// Store is the storage the triage service needs.
type Store interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	CountProjects(ctx context.Context, ownerID uuid.UUID) (int, error)
	GetErrorGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error)
	ListErrorGroups(ctx context.Context, filter store.GroupFilter) ([]*models.ErrorGroup, int, error)
	UpdateErrorGroup(ctx context.Context, id uuid.UUID, patch store.GroupPatch) (*models.ErrorGroup, models.Status, error)
	DeleteErrorGroup(ctx context.Context, id uuid.UUID) error
	ListOccurrences(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.ErrorOccurrence, error)
	DashboardStats(ctx context.Context, ownerID uuid.UUID, recent int) (*store.DashboardStats, error)
}

// Notifier receives triage side effects.
type Notifier interface {
	OnStatusChange(ctx context.Context, group *models.ErrorGroup, newStatus models.Status, actorID uuid.UUID, actorName string) error
	OnAssigned(ctx context.Context, group *models.ErrorGroup, assigneeID uuid.UUID, actorID uuid.UUID, actorName string) error
}

// Service implements error group triage.
type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewService(s Store, n Notifier) *Service {
	return &Service{store: s, notifier: n, now: time.Now}
}

// ListParams are the optional, AND-combined list filters.
type ListParams struct {
	ProjectID uuid.UUID
	Severity  string
	Status    string
	Search    string
	// DateRange is one of 24h, 7d, 30d or all; anything else means all.
	DateRange string
	Page      int
	Limit     int
}

// Page is one page of a filtered list.
type Page struct {
	Items      []*models.ErrorGroup `json:"items"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

var dateRanges = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// List returns the groups visible to requester that match params. Without a
// project filter, non-elevated requesters only see their own projects' groups;
// an explicit project filter must name a project they can see.
func (s *Service) List(ctx context.Context, params ListParams, requester *models.User) (*Page, error) {
	filter := store.GroupFilter{
		ProjectID: params.ProjectID,
		Search:    params.Search,
		Page:      params.Page,
		Limit:     params.Limit,
	}

	if params.Severity != "" {
		sev, err := models.ParseSeverity(params.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		filter.Severity = sev
	}
	if params.Status != "" {
		st, err := models.ParseStatus(params.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		filter.Status = st
	}
	if d, ok := dateRanges[params.DateRange]; ok {
		filter.Since = s.now().Add(-d)
	}

	if params.ProjectID != uuid.Nil {
		if _, err := s.visibleProject(ctx, params.ProjectID, requester); err != nil {
			return nil, err
		}
	} else if !requester.Role.IsElevated() {
		filter.OwnerID = requester.ID
	}

	items, total, err := s.store.ListErrorGroups(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list error groups: %w", err)
	}
	if items == nil {
		items = []*models.ErrorGroup{}
	}

	page, limit, _ := filter.Pagination()
	return &Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Get returns a visible group with its most recent occurrences.
func (s *Service) Get(ctx context.Context, id uuid.UUID, requester *models.User) (*models.ErrorGroupDetail, error) {
	group, err := s.visibleGroup(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.store.ListOccurrences(ctx, id, DetailOccurrences)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	if occurrences == nil {
		occurrences = []*models.ErrorOccurrence{}
	}
	return &models.ErrorGroupDetail{ErrorGroup: *group, Occurrences: occurrences}, nil
}

// UpdateInput is a partial update. Assignment is applied only when
// SetAssignee is true; a nil AssigneeID then clears it.
type UpdateInput struct {
	Status      *models.Status
	SetAssignee bool
	AssigneeID  *uuid.UUID
}

// Update applies in to a visible group and fires notifications for a changed
// status or a new assignee. Notification failures are logged, not returned.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput, actor *models.User) (*models.ErrorGroup, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidInput, *in.Status)
	}

	before, err := s.visibleGroup(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if in.SetAssignee && in.AssigneeID != nil {
		if _, err := s.store.GetUser(ctx, *in.AssigneeID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: assignee %s does not exist", models.ErrInvalidInput, *in.AssigneeID)
			}
			return nil, fmt.Errorf("get assignee: %w", err)
		}
	}

	updated, previous, err := s.store.UpdateErrorGroup(ctx, id, store.GroupPatch{
		Status:       in.Status,
		SetAssignee:  in.SetAssignee,
		AssignedToID: in.AssigneeID,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update error group: %w", err)
	}

	if in.Status != nil && *in.Status != previous {
		if err := s.notifier.OnStatusChange(ctx, updated, *in.Status, actor.ID, actor.Name); err != nil {
			slog.Warn("status change notification failed", "group_id", id, "error", err)
		}
	}
	if in.SetAssignee && in.AssigneeID != nil && !sameID(before.AssignedToID, in.AssigneeID) {
		if err := s.notifier.OnAssigned(ctx, updated, *in.AssigneeID, actor.ID, actor.Name); err != nil {
			slog.Warn("assignment notification failed", "group_id", id, "error", err)
		}
	}

	return updated, nil
}

// Delete removes a group and everything attached to it. Elevated roles only.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor *models.User) error {
	if !actor.Role.IsElevated() {
		return models.ErrForbidden
	}
	if err := s.store.DeleteErrorGroup(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete error group: %w", err)
	}
	slog.Info("error group deleted", "group_id", id, "actor_id", actor.ID)
	return nil
}

// Dashboard summarizes the groups of projects owned by ownerID.
type Dashboard struct {
	TotalErrors    int                  `json:"total_errors"`
	Unresolved     int                  `json:"unresolved"`
	Resolved       int                  `json:"resolved"`
	RecentErrors   []*models.ErrorGroup `json:"recent_errors"`
	ActiveProjects int                  `json:"active_projects"`
}

// Dashboard returns counts and the most recently seen groups for ownerID.
// Counts and the recent list come from a single snapshot.
func (s *Service) Dashboard(ctx context.Context, ownerID uuid.UUID) (*Dashboard, error) {
	var stats *store.DashboardStats
	var projects int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.store.DashboardStats(gctx, ownerID, RecentErrors)
		if err != nil {
			return fmt.Errorf("dashboard stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		projects, err = s.store.CountProjects(gctx, ownerID)
		if err != nil {
			return fmt.Errorf("count projects: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recent := stats.Recent
	if recent == nil {
		recent = []*models.ErrorGroup{}
	}
	return &Dashboard{
		TotalErrors:    stats.Total,
		Unresolved:     stats.Unresolved,
		Resolved:       stats.Resolved,
		RecentErrors:   recent,
		ActiveProjects: projects,
	}, nil
}

// RecentErrors returns only the dashboard's recent list for ownerID.
func (s *Service) RecentErrors(ctx context.Context, ownerID uuid.UUID) ([]*models.ErrorGroup, error) {
	stats, err := s.store.DashboardStats(ctx, ownerID, RecentErrors)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	if stats.Recent == nil {
		return []*models.ErrorGroup{}, nil
	}
	return stats.Recent, nil
}

// Visible returns the group if requester may see it, else store.ErrNotFound.
func (s *Service) Visible(ctx context.Context, id uuid.UUID, requester *models.User) (*models.ErrorGroup, error) {
	return s.visibleGroup(ctx, id, requester)
}

// CheckProject reports store.ErrNotFound unless requester may see project id.
func (s *Service) CheckProject(ctx context.Context, id uuid.UUID, requester *models.User) error {
	_, err := s.visibleProject(ctx, id, requester)
	return err
}

// visibleGroup loads a group, reporting ErrNotFound when requester may not see it.
func (s *Service) visibleGroup(ctx context.Context, id uuid.UUID, requester *models.User) (*models.ErrorGroup, error) {
	group, err := s.store.GetErrorGroup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get error group: %w", err)
	}
	if requester.Role.IsElevated() {
		return group, nil
	}
	if group.Project == nil || group.Project.OwnerID != requester.ID {
		return nil, store.ErrNotFound
	}
	return group, nil
}

func (s *Service) visibleProject(ctx context.Context, id uuid.UUID, requester *models.User) (*models.Project, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if !requester.Role.IsElevated() && project.OwnerID != requester.ID {
		return nil, store.ErrNotFound
	}
	return project, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
