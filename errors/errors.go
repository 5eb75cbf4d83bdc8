// Package errors provides error handling for courier.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	if err := client.Enqueue(ctx, job, opts); err != nil {
//	    return errors.Wrap(err, "failed to enqueue cleanup job")
//	}
//
// Sentinels below classify failures for HTTP responses. Wrap them to add
// context; check them with errors.Is.
package errors

import (
	"net/http"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
	GetAllHints     = crdb.GetAllHints
	FlattenHints    = crdb.FlattenHints
	FlattenDetails  = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrUnauthorized indicates the request lacks proper authentication
	ErrUnauthorized = New("unauthorized")

	// ErrServiceUnavailable indicates an upstream dependency (broker, store) failed
	ErrServiceUnavailable = New("service unavailable")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = New("operation timed out")

	// ErrUpstream marks errors whose text came from a remote service. Their
	// message is for logs only, never for API responses.
	ErrUpstream = New("upstream error")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsServiceUnavailableError checks if an error is or wraps ErrServiceUnavailable
func IsServiceUnavailableError(err error) bool {
	return err != nil && Is(err, ErrServiceUnavailable)
}

// IsUpstreamError checks if an error is or wraps ErrUpstream
func IsUpstreamError(err error) bool {
	return err != nil && Is(err, ErrUpstream)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message.
// The message stays first so it can be shown to API callers as-is.
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// HTTPStatus maps an error to the status code an API handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case Is(err, ErrNotFound):
		return http.StatusNotFound
	case Is(err, ErrServiceUnavailable):
		return http.StatusBadGateway
	case Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
