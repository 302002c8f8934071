package models

import (
	"time"

	"github.com/google/uuid"
)

// Well-known occurrence metadata keys. Metadata stays an open map; SDKs may
// send any additional keys.
const (
	MetaURL         = "url"
	MetaUserAgent   = "userAgent"
	MetaEnvironment = "environment"
	MetaFramework   = "framework"
	MetaBrowser     = "browser"
	MetaOS          = "os"
	MetaScreen      = "screen"
	MetaUserID      = "userId"
	MetaUserName    = "userName"
)

// Metadata is the free-form context attached to a single occurrence.
type Metadata map[string]any

// String returns the value under key if it is a non-empty string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// ErrorOccurrence is one raw report. It is immutable once written.
type ErrorOccurrence struct {
	ID           uuid.UUID `db:"id"             json:"id"`
	ErrorGroupID uuid.UUID `db:"error_group_id" json:"error_group_id"`
	FullMessage  string    `db:"full_message"   json:"full_message"`
	StackTrace   string    `db:"stack_trace"    json:"stack_trace"`
	Metadata     Metadata  `db:"metadata"       json:"metadata"`
	CreatedAt    time.Time `db:"created_at"     json:"created_at"`
}
