package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/devpool/chatsync/internal/domain"
)

// Error is a non-2xx response from the chat API. Message carries the
// backend's human-readable "message" field.
type Error struct {
	Status  int
	Message string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat api: %s", http.StatusText(e.Status))
	}
	return e.Message
}

// Is lets errors.Is match the domain sentinels by status.
func (e *Error) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrInvalidInput:
		return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity
	}
	return false
}

// StatusCode returns the HTTP status of err when it is an *Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
