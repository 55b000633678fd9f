package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Kind classifies a failure for the UI banner. It is stable and safe to
// expose to clients.
type Kind string

const (
	KindAuthMissing Kind = "auth_missing"
	KindNetwork     Kind = "network"
	KindHTTP        Kind = "http"
	KindDecode      Kind = "decode"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	// Status is the upstream HTTP status for KindHTTP errors.
	Status int   `json:"status,omitempty"`
	Err    error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error to the HTTP status returned to our own clients.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrConflict:
		return http.StatusConflict
	case ErrUpstream:
		return http.StatusBadGateway
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrTimeout:
		return http.StatusGatewayTimeout
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrUpstream
	ErrUnavailable
	ErrTimeout
	ErrRateLimited
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Kind:    KindValidation,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Kind:    KindAuthMissing,
		Message: "unauthorized",
		Err:     err,
	}
}

// AuthMissing is returned before any network call when no bearer token is available.
func AuthMissing() *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Kind:    KindAuthMissing,
		Message: "bearer token is missing",
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Kind:    KindConflict,
		Message: message,
	}
}

func Network(err error) *AppError {
	return &AppError{
		Code:    ErrUpstream,
		Kind:    KindNetwork,
		Message: "backend unreachable",
		Err:     err,
	}
}

// HTTPStatus wraps a non-2xx backend response.
func HTTPStatus(status int, message string) *AppError {
	return &AppError{
		Code:    ErrUpstream,
		Kind:    KindHTTP,
		Message: message,
		Status:  status,
	}
}

func Decode(err error) *AppError {
	return &AppError{
		Code:    ErrUpstream,
		Kind:    KindDecode,
		Message: "malformed backend response",
		Err:     err,
	}
}

func Unavailable(err error) *AppError {
	return &AppError{
		Code:    ErrUnavailable,
		Kind:    KindUnavailable,
		Message: "backend temporarily unavailable",
		Err:     err,
	}
}

// Timeout is returned when our own request deadline passed.
func Timeout(err error) *AppError {
	return &AppError{
		Code:    ErrTimeout,
		Kind:    KindUnavailable,
		Message: "request timed out",
		Err:     err,
	}
}

func TooManyRequests() *AppError {
	return &AppError{
		Code:    ErrRateLimited,
		Kind:    KindUnavailable,
		Message: "rate limit exceeded",
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
