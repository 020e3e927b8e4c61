package domain

import "fmt"

// ValidationError reports a missing or empty required request field.
// Validation failures never leave side effects behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError reports an I/O failure while persisting or reading an
// artifact. No rollback of partially written bytes is attempted.
type StorageError struct {
	SessionID string
	Artifact  string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure for session %s artifact %s: %v", e.SessionID, e.Artifact, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EvaluationError reports a scoring failure for a stored page. When it
// occurs, the page image has already been broadcast to the room and no
// evaluation_result event follows.
type EvaluationError struct {
	SessionID string
	Page      string
	Err       error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed for session %s page %s: %v", e.SessionID, e.Page, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
