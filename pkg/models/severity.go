// Package models contains shared data models used across the errtrack codebase.
package models

import (
	"fmt"
	"strings"
)

// Severity is the reported seriousness of an error.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity is applied to new groups whose first report carries no severity.
const DefaultSeverity = SeverityError

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// Rank returns the position of s in the escalation order, or -1 if s is unknown.
func (s Severity) Rank() int {
	r, ok := severityRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity accepts a severity name in any letter case.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// MaxSeverity returns the more severe of stored and incoming. An empty incoming
// severity means the report did not carry one and leaves stored untouched.
func MaxSeverity(stored, incoming Severity) Severity {
	if incoming == "" || !incoming.Valid() {
		return stored
	}
	if incoming.Rank() > stored.Rank() {
		return incoming
	}
	return stored
}
