package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationStatusChanged NotificationType = "error_status_changed"
	NotificationAssigned      NotificationType = "error_assigned"
	NotificationComment       NotificationType = "error_comment"
)

// Notification records that a user should learn about something that
// happened to an error group. Only Read ever changes after creation.
type Notification struct {
	ID           uuid.UUID        `db:"id"             json:"id"`
	UserID       uuid.UUID        `db:"user_id"        json:"user_id"`
	Type         NotificationType `db:"type"           json:"type"`
	Message      string           `db:"message"        json:"message"`
	Read         bool             `db:"read"           json:"read"`
	ErrorGroupID *uuid.UUID       `db:"error_group_id" json:"error_group_id,omitempty"`
	ActorID      *uuid.UUID       `db:"actor_id"       json:"actor_id,omitempty"`
	CreatedAt    time.Time        `db:"created_at"     json:"created_at"`
}
