package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the chat domain. These provide consistent, checkable
// errors for the failures a UI caller is expected to branch on.
var (
	// ErrNotConnected is returned by hub invocations while the connection is not live.
	ErrNotConnected = errors.New("not connected to chat hub")

	// ErrNoActiveConversation is returned by actions that need a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrInvalidInput is returned when a request fails validation before it is sent.
	ErrInvalidInput = errors.New("invalid input data")

	// ErrNotFound is returned when the backend reports a missing resource.
	ErrNotFound = errors.New("requested resource not found")
)

// OperationError carries an operation fault back to the UI caller with a
// human-readable message. It wraps the underlying cause for errors.Is/As.
type OperationError struct {
	// Op names the user action that failed, e.g. "send message".
	Op string

	// Err is the underlying error.
	Err error
}

// NewOperationError wraps err as a failure of op. A nil err yields nil.
func NewOperationError(op string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) && opErr.Op == op {
		return err
	}
	return &OperationError{Op: op, Err: err}
}

// Error returns the error message.
func (e *OperationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to %s", e.Op)
	}
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}
