package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorGroup is the deduplicated aggregate of all occurrences sharing a
// fingerprint within one project.
type ErrorGroup struct {
	ID                uuid.UUID  `db:"id"                 json:"id"`
	ProjectID         uuid.UUID  `db:"project_id"         json:"project_id"`
	Fingerprint       string     `db:"fingerprint"        json:"fingerprint"`
	NormalizedMessage string     `db:"normalized_message" json:"normalized_message"`
	ErrorType         string     `db:"error_type"         json:"error_type"`
	Severity          Severity   `db:"severity"           json:"severity"`
	Status            Status     `db:"status"             json:"status"`
	OccurrenceCount   int        `db:"occurrence_count"   json:"occurrence_count"`
	FirstSeenAt       time.Time  `db:"first_seen_at"      json:"first_seen_at"`
	LastSeenAt        time.Time  `db:"last_seen_at"       json:"last_seen_at"`
	File              string     `db:"file"               json:"file,omitempty"`
	Line              int        `db:"line"               json:"line,omitempty"`
	FunctionName      string     `db:"function_name"      json:"function_name,omitempty"`
	AssignedToID      *uuid.UUID `db:"assigned_to_id"     json:"assigned_to_id,omitempty"`
	ReportedByID      *uuid.UUID `db:"reported_by_id"     json:"reported_by_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"         json:"updated_at"`

	// Project is populated by reads that join the owning project.
	Project *Project `db:"-" json:"project,omitempty"`
}

// ErrorGroupDetail is a group together with its most recent occurrences.
type ErrorGroupDetail struct {
	ErrorGroup
	Occurrences []*ErrorOccurrence `json:"occurrences"`
}
