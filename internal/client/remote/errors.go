package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const networkingMessage = "Networking error"

// Error is a rejection from the remote service: a transport failure, a
// non-2xx response, a malformed payload or a payload with status false.
// Error() is the human readable message meant for the UI.
type Error struct {
	// StatusCode is the HTTP status, 0 for transport failures.
	StatusCode int
	// Message is the server-provided or generic message.
	Message string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil && !isContextErr(e.Err)
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func transportError(err error) *Error {
	return &Error{Message: networkingMessage, Err: err}
}

// statusError builds an Error for a non-2xx response, preferring the
// message of the body envelope when there is one.
func statusError(status int, body []byte) *Error {
	var env struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil && env.Message != "" {
		return &Error{StatusCode: status, Message: env.Message}
	}
	return &Error{StatusCode: status, Message: fmt.Sprintf("Request failed with status %d", status)}
}

// IsStatus reports whether err is a remote Error with the given status.
func IsStatus(err error, status int) bool {
	var re *Error
	return errors.As(err, &re) && re.StatusCode == status
}
