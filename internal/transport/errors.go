package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost is returned to invocations pending when a live connection drops.
	ErrConnectionLost = errors.New("hub connection lost")

	// errNoToken stops the reconnect schedule when the credential disappeared.
	errNoToken = errors.New("no bearer token available")
)

// InvocationError is returned when the hub acknowledges an invocation with an error.
type InvocationError struct {
	Target  string
	Message string
}

// Error returns the error message.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("hub rejected %s: %s", e.Target, e.Message)
}
