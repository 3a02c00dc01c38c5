// Package errs defines the error taxonomy shared by every pipeline stage.
//
// The four categories map directly onto caller behavior:
//
//   - ValidationError: malformed input (bad header, missing map). Surfaced
//     immediately, never retried.
//   - NotFoundError: unknown run, map, or dataset.
//   - CapacityError: hard per-run row cap exceeded. Fatal; the operator must
//     split the dataset.
//   - TransientStorageError: transaction conflicts and connection failures.
//     May be retried at the storage-adapter boundary only; the pipeline core
//     records the failure and does not retry.
//
// Errors carry tenant/run/row context for log correlation but never reproduce
// row contents.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError indicates malformed or incomplete input that the caller
// must fix before retrying.
type ValidationError struct {
	TenantID string
	RunID    string
	RowNo    int // 0 when the error is not row-specific
	Msg      string
}

func (e *ValidationError) Error() string {
	if e.RowNo > 0 {
		return fmt.Sprintf("validation: %s (tenant=%s run=%s row=%d)", e.Msg, e.TenantID, e.RunID, e.RowNo)
	}
	return fmt.Sprintf("validation: %s (tenant=%s run=%s)", e.Msg, e.TenantID, e.RunID)
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(tenantID, runID string, format string, args ...any) *ValidationError {
	return &ValidationError{TenantID: tenantID, RunID: runID, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates a missing resource.
type NotFoundError struct {
	Resource string // "run", "column map", "dataset"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// CapacityError indicates the per-run row cap was exceeded. This is fatal
// and non-retryable; it fires before rules or staging run, never after a
// silent truncation.
type CapacityError struct {
	TenantID string
	RunID    string
	Limit    int
	Actual   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("run exceeds row cap: %d rows, limit %d (tenant=%s run=%s)", e.Actual, e.Limit, e.TenantID, e.RunID)
}

// TransientStorageError wraps a storage failure that a storage adapter may
// retry. The pipeline core treats it as terminal for the current attempt.
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage error during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsCapacity reports whether err is a CapacityError.
func IsCapacity(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// IsTransient reports whether err is a TransientStorageError.
func IsTransient(err error) bool {
	var te *TransientStorageError
	return errors.As(err, &te)
}
