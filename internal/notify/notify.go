// Package notify creates in-app notifications for error group activity and
// serves each user's notification inbox.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errtrack/internal/metrics"
	"github.com/kiranshivaraju/errtrack/internal/store"
	"github.com/kiranshivaraju/errtrack/pkg/models"
)

const (
	resultSent    = "sent"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

// Store is the storage the notifier needs.
type Store interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID, userID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

// Notifier creates notifications synchronously with the change that
// triggers them.
type Notifier struct {
	store Store
	now   func() time.Time
}

func NewNotifier(s Store) *Notifier {
	return &Notifier{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// OnStatusChange tells the group's reporter, or failing that its project's
// owner, that actorName moved the group to newStatus. Nobody is notified when
// there is no such user or when they made the change themselves.
func (n *Notifier) OnStatusChange(ctx context.Context, group *models.ErrorGroup, newStatus models.Status, actorID uuid.UUID, actorName string) error {
	target, err := n.responsibleUser(ctx, group)
	if err != nil {
		return n.fail(models.NotificationStatusChanged, err)
	}
	msg := fmt.Sprintf(`%s %s your error: "%s"`, actorName, newStatus.Verb(), group.NormalizedMessage)
	return n.send(ctx, models.NotificationStatusChanged, target, actorID, group.ID, msg)
}

// OnAssigned tells assigneeID that actorName assigned them the group.
func (n *Notifier) OnAssigned(ctx context.Context, group *models.ErrorGroup, assigneeID uuid.UUID, actorID uuid.UUID, actorName string) error {
	msg := fmt.Sprintf(`%s assigned you an error: "%s"`, actorName, group.NormalizedMessage)
	return n.send(ctx, models.NotificationAssigned, assigneeID, actorID, group.ID, msg)
}

// OnComment tells the group's responsible user about a new public comment.
func (n *Notifier) OnComment(ctx context.Context, group *models.ErrorGroup, comment *models.ErrorComment, actorName string) error {
	if comment.IsInternal {
		metrics.NotificationsTotal.WithLabelValues(string(models.NotificationComment), resultSkipped).Inc()
		return nil
	}
	target, err := n.responsibleUser(ctx, group)
	if err != nil {
		return n.fail(models.NotificationComment, err)
	}
	msg := fmt.Sprintf(`%s commented on your error: "%s"`, actorName, group.NormalizedMessage)
	return n.send(ctx, models.NotificationComment, target, comment.AuthorID, group.ID, msg)
}

// responsibleUser is the group's reporter, else its project's owner, else uuid.Nil.
func (n *Notifier) responsibleUser(ctx context.Context, group *models.ErrorGroup) (uuid.UUID, error) {
	if group.ReportedByID != nil && *group.ReportedByID != uuid.Nil {
		return *group.ReportedByID, nil
	}
	if group.Project != nil {
		return group.Project.OwnerID, nil
	}
	project, err := n.store.GetProject(ctx, group.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get project: %w", err)
	}
	return project.OwnerID, nil
}

func (n *Notifier) send(ctx context.Context, typ models.NotificationType, target, actorID, groupID uuid.UUID, msg string) error {
	if target == uuid.Nil || target == actorID {
		metrics.NotificationsTotal.WithLabelValues(string(typ), resultSkipped).Inc()
		return nil
	}

	notification := &models.Notification{
		ID:           uuid.New(),
		UserID:       target,
		Type:         typ,
		Message:      msg,
		ErrorGroupID: &groupID,
		CreatedAt:    n.now(),
	}
	if actorID != uuid.Nil {
		notification.ActorID = &actorID
	}
	if err := n.store.CreateNotification(ctx, notification); err != nil {
		return n.fail(typ, fmt.Errorf("create notification: %w", err))
	}

	metrics.NotificationsTotal.WithLabelValues(string(typ), resultSent).Inc()
	slog.Debug("notification created", "type", typ, "user_id", target, "group_id", groupID)
	return nil
}

func (n *Notifier) fail(typ models.NotificationType, err error) error {
	metrics.NotificationsTotal.WithLabelValues(string(typ), resultFailed).Inc()
	return err
}

// --- Inbox ---

// List returns userID's notifications, newest first.
func (n *Notifier) List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	list, err := n.store.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if list == nil {
		list = []*models.Notification{}
	}
	return list, nil
}

func (n *Notifier) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := n.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of userID's notifications read. A notification that
// belongs to someone else is reported as store.ErrNotFound.
func (n *Notifier) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := n.store.MarkNotificationRead(ctx, id, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (n *Notifier) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if err := n.store.MarkAllNotificationsRead(ctx, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}
