package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for uniform handling at the boundary.
type Kind string

const (
	KindValidation   Kind = "validation"   // bad input, rejected before persistence
	KindAuthenticity Kind = "authenticity" // failed signature or credentials
	KindReference    Kind = "reference"    // unknown order/payment reference
	KindProvider     Kind = "provider"     // payment provider reported failure
	KindConflict     Kind = "conflict"     // state precondition not met
	KindInternal     Kind = "internal"
)

// Common sentinel errors.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("resource conflict")
	ErrInternal     = errors.New("internal error")
)

// AppError represents an application error with a kind, a stable code and an
// HTTP status.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ErrorResponse represents the JSON error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an AppError to ErrorResponse.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// Validation creates a validation error.
func Validation(code, message string) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        ErrBadRequest,
	}
}

// Authenticity creates an authenticity error (bad signature, bad credentials).
func Authenticity(message string) *AppError {
	return &AppError{
		Kind:       KindAuthenticity,
		Code:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// Reference creates an unknown-reference error.
func Reference(resource string) *AppError {
	return &AppError{
		Kind:       KindReference,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// Provider creates a provider error carrying the provider's own code and
// message verbatim for support diagnostics.
func Provider(code, message string, err error) *AppError {
	return &AppError{
		Kind:       KindProvider,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// Conflict creates a state-conflict error.
func Conflict(code, message string) *AppError {
	return &AppError{
		Kind:       KindConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        ErrConflict,
	}
}

// Internal creates an internal error.
func Internal(message string, err error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// KindOf returns the kind of an error, or KindInternal for plain errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// GetStatusCode returns the appropriate HTTP status code for an error.
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
