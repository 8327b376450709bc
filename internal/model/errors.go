package model

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned when a template id is unknown to the tenant.
var ErrTemplateNotFound = errors.New("template not found")

// ErrScopeConflict is returned when a template is applied to a scope that
// already has active rules and overwrite was not requested.
var ErrScopeConflict = errors.New("scope already has active rules")

// ValidationError marks malformed rule data: bad time ordering, a local time
// that falls inside a DST gap, an unknown template, a scope conflict. It is
// deterministic and never retried.
type ValidationError struct {
	Date   string // affected calendar date, when the error is per-date
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Date != "" {
		return fmt.Sprintf("%s: %s", e.Date, e.Reason)
	}
	return e.Reason
}

// TransientStorageError marks an I/O failure during persistence. The job
// orchestrator retries these with backoff up to the retry budget.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientStorageError
	return errors.As(err, &t)
}

// IsValidation reports whether err is a deterministic validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrScopeConflict)
}
