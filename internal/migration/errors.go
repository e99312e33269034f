package migration

import (
	"errors"
	"strings"

	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

var (
	// ErrStagingInProgress: another candidate is staged or being validated.
	ErrStagingInProgress = errors.New("staging in progress")
	// ErrValidationFailed is wrapped by *ValidationError.
	ErrValidationFailed     = errors.New("validation failed")
	ErrNotReadyForMigration = errors.New("not ready for migration")
	ErrMigrationInProgress  = errors.New("migration in progress")
	// ErrInvalidState: advance called outside shadow or gradual phases.
	ErrInvalidState = errors.New("invalid migration state")
	// ErrAdvanceDeferred: not enough shadow samples yet. Retry later.
	ErrAdvanceDeferred = errors.New("advance deferred")
	// ErrStagingAborted: a rollback discarded the candidate mid-validation.
	ErrStagingAborted = errors.New("staging aborted by rollback")
)

// ValidationError carries the report of a rejected candidate.
type ValidationError struct {
	Report *validation.Report
}

func (e *ValidationError) Error() string {
	if e.Report == nil || len(e.Report.Errors) == 0 {
		return ErrValidationFailed.Error()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(e.Report.Errors, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }
