package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorComment is a discussion entry on a group. Internal comments are only
// returned to elevated readers.
type ErrorComment struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	ErrorGroupID uuid.UUID `db:"error_group_id" json:"error_group_id"`
	AuthorID     uuid.UUID `db:"author_id"      json:"author_id"`
	Content      string    `db:"content"        json:"content"`
	IsInternal   bool      `db:"is_internal"    json:"is_internal"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
}
