// Package apierror defines the typed errors the service layer returns and
// the HTTP status each one maps to.  Handlers never build error responses
// from raw errors; the message carried here is what the client sees, the
// wrapped cause is only logged.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error is an error with a client-facing message and HTTP status.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Unauthorized is an authentication failure (401).
func Unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

// Forbidden is an authorization failure (403).
func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

// Unavailable reports a dependency that did not answer in time (503).  It
// keeps timeouts apart from 401/403 verdicts.
func Unavailable(msg string, cause error) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Message: msg, Err: cause}
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an
// *Error.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// HTTPStatus maps any handler error to the status written to the client.
// Timeouts become 504 and unknown errors 500.
func HTTPStatus(err error) int {
	if s := StatusOf(err); s != 0 {
		return s
	}
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
