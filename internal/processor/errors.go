package processor

import (
	"errors"
	"fmt"
)

// SyncError represents a failure detected while processing a queue item.
//
// Sync errors include:
//   - Not found: the local entity behind the item no longer exists
//   - Unresolved dependency: a parent entity has no remote identifier yet
//   - Remote: the remote system rejected or failed the call
//   - Invalid payload: the item cannot be interpreted
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// EntityID identifies the local entity being processed.
	EntityID string

	// Err is the underlying cause, if any.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeNotFound indicates the local entity is missing. Terminal.
	ErrCodeNotFound SyncErrorCode = "NOT_FOUND"

	// ErrCodeUnresolvedDependency indicates a parent is not yet synced.
	ErrCodeUnresolvedDependency SyncErrorCode = "UNRESOLVED_DEPENDENCY"

	// ErrCodeRemote indicates the remote call failed.
	ErrCodeRemote SyncErrorCode = "REMOTE"

	// ErrCodeInvalidPayload indicates the item cannot be processed as recorded.
	ErrCodeInvalidPayload SyncErrorCode = "INVALID_PAYLOAD"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntityID != "" {
		msg += fmt.Sprintf(" (entity=%s)", e.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause so SQLSTATE codes stay reachable.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotFoundError returns true if err is a missing-entity error.
// Uses errors.As to handle wrapped errors.
func IsNotFoundError(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnresolvedError returns true if err is an unresolved-dependency error.
func IsUnresolvedError(err error) bool {
	return hasCode(err, ErrCodeUnresolvedDependency)
}

// IsRemoteError returns true if err is a remote failure.
func IsRemoteError(err error) bool {
	return hasCode(err, ErrCodeRemote)
}

// IsInvalidPayloadError returns true if err is an invalid-payload error.
func IsInvalidPayloadError(err error) bool {
	return hasCode(err, ErrCodeInvalidPayload)
}

// NewNotFoundError creates a SyncError for a missing local entity.
func NewNotFoundError(entity, id string) *SyncError {
	return &SyncError{
		Code:     ErrCodeNotFound,
		Message:  entity + " not found",
		EntityID: id,
	}
}

// NewUnresolvedError creates a SyncError for a parent without a remote id.
func NewUnresolvedError(parent, id string) *SyncError {
	return &SyncError{
		Code:     ErrCodeUnresolvedDependency,
		Message:  parent + " not yet synced",
		EntityID: id,
	}
}

// NewRemoteError wraps a remote failure.
func NewRemoteError(op, id string, err error) *SyncError {
	return &SyncError{
		Code:     ErrCodeRemote,
		Message:  op + " failed",
		EntityID: id,
		Err:      err,
	}
}

// NewInvalidPayloadError creates a SyncError for an uninterpretable item.
func NewInvalidPayloadError(id, reason string) *SyncError {
	return &SyncError{
		Code:     ErrCodeInvalidPayload,
		Message:  reason,
		EntityID: id,
	}
}
