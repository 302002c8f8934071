package models

import (
	"fmt"
	"strings"
)

// Status is the triage state of an error group. Any status may follow any other.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
	StatusDeleted    Status = "deleted"
)

var statusVerbs = map[Status]string{
	StatusResolved:   "resolved",
	StatusUnresolved: "reopened",
	StatusIgnored:    "ignored",
	StatusDeleted:    "deleted",
}

func (s Status) Valid() bool {
	_, ok := statusVerbs[s]
	return ok
}

// Verb describes the transition into s for notification messages.
func (s Status) Verb() string {
	if v, ok := statusVerbs[s]; ok {
		return v
	}
	return "updated"
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", v)
	}
	return s, nil
}
