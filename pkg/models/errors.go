package models

import "errors"

// ErrInvalidInput marks a request rejected by validation. Wrap it with the
// offending field: fmt.Errorf("%w: message is required", ErrInvalidInput).
var ErrInvalidInput = errors.New("invalid input")

// ErrForbidden marks an operation the caller's role does not permit.
var ErrForbidden = errors.New("forbidden")
