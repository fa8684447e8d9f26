package api

import (
	"errors"
	"fmt"
)

// Error represents an API error with its HTTP status code and the server's
// message, when one was provided.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsServerError reports whether the error is a 5xx API error.
func IsServerError(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// ErrResetNotRequested is returned when a password reset is attempted
// without the one-shot flag set by a preceding forgot-password call.
var ErrResetNotRequested = errors.New("password reset was not requested")
