package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrConflict reports a concurrent-write collision the caller may retry.
var ErrConflict = errors.New("concurrent write conflict")

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)

	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectsByKeyPrefix(ctx context.Context, prefix string) ([]*models.Project, error)
	CountProjects(ctx context.Context, ownerID uuid.UUID) (int, error)
	ListProjects(ctx context.Context, ownerID uuid.UUID) ([]*models.Project, error)

	RecordOccurrence(ctx context.Context, up GroupUpsert, occ *models.ErrorOccurrence) (*models.ErrorGroup, error)
	GetErrorGroup(ctx context.Context, id uuid.UUID) (*models.ErrorGroup, error)
	ListErrorGroups(ctx context.Context, filter GroupFilter) ([]*models.ErrorGroup, int, error)
	UpdateErrorGroup(ctx context.Context, id uuid.UUID, patch GroupPatch) (*models.ErrorGroup, models.Status, error)
	DeleteErrorGroup(ctx context.Context, id uuid.UUID) error
	ListOccurrences(ctx context.Context, groupID uuid.UUID, limit int) ([]*models.ErrorOccurrence, error)
	DashboardStats(ctx context.Context, ownerID uuid.UUID, recent int) (*DashboardStats, error)

	CreateComment(ctx context.Context, comment *models.ErrorComment) error
	ListComments(ctx context.Context, groupID uuid.UUID, includeInternal bool) ([]*models.ErrorComment, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

// GroupUpsert describes one incoming report for the find-or-create-or-update
// of its error group.
type GroupUpsert struct {
	ProjectID         uuid.UUID
	Fingerprint       string
	NormalizedMessage string
	ErrorType         string
	// Severity is the reported severity; empty when the report carried none.
	Severity     models.Severity
	File         string
	Line         int
	FunctionName string
	ReportedByID *uuid.UUID
	SeenAt       time.Time
}

// InitialSeverity is the severity a newly created group starts with.
func (u GroupUpsert) InitialSeverity() models.Severity {
	if u.Severity.Valid() {
		return u.Severity
	}
	return models.DefaultSeverity
}

// GroupFilter selects error groups. Zero values mean "no restriction".
type GroupFilter struct {
	ProjectID uuid.UUID
	// OwnerID restricts results to projects owned by this user.
	OwnerID  uuid.UUID
	Severity models.Severity
	Status   models.Status
	Search   string
	Since    time.Time
	Page     int
	Limit    int
}

// Pagination returns the effective 1-indexed page, page size and row offset.
func (f GroupFilter) Pagination() (page, limit, offset int) {
	limit = f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page = f.Page
	if page <= 0 {
		page = 1
	}
	// Offsets past the addressable range saturate; such pages are always empty.
	if page-1 > (math.MaxInt-limit)/limit {
		return page, limit, math.MaxInt - limit
	}
	return page, limit, (page - 1) * limit
}

// GroupPatch is a partial update of a group's triage fields.
type GroupPatch struct {
	Status *models.Status
	// SetAssignee distinguishes "unassign" (nil AssignedToID) from "leave as is".
	SetAssignee  bool
	AssignedToID *uuid.UUID
}

type DashboardStats struct {
	Total      int
	Unresolved int
	Resolved   int
	Recent     []*models.ErrorGroup
}
