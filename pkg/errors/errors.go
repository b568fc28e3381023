package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "RESOURCE_NOT_FOUND"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodePolicyViolation     = "POLICY_VIOLATION"
	CodeInvalidState        = "INVALID_STATE"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeBadRequest          = "BAD_REQUEST"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
)

// Category groups errors by how a caller should react to them.
type Category string

const (
	CategoryInput    Category = "input"
	CategoryPolicy   Category = "policy"
	CategoryState    Category = "state"
	CategoryConflict Category = "conflict"
	CategoryNotFound Category = "not_found"
	CategoryInternal Category = "internal"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   Category          `json:"category"`
	Retryable  bool              `json:"retryable"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithCode overrides the error code, keeping category and status.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int, category Category) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates an input error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest, CategoryInput)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	e := ErrValidation(message)
	e.Details = fields
	return e
}

// ErrPolicy creates a business policy rejection: the input was well formed
// but the reference data does not allow the request.
func ErrPolicy(message string) *AppError {
	return NewAppError(CodePolicyViolation, message, http.StatusUnprocessableEntity, CategoryPolicy)
}

// ErrInvalidState creates a lifecycle rejection.
func ErrInvalidState(message string) *AppError {
	return NewAppError(CodeInvalidState, message, http.StatusConflict, CategoryState)
}

// ErrConcurrencyConflict creates a retryable conflict error.
func ErrConcurrencyConflict(message string) *AppError {
	e := NewAppError(CodeConcurrencyConflict, message, http.StatusConflict, CategoryConflict)
	e.Retryable = true
	return e
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, CategoryNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError, CategoryInternal)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest, CategoryInput)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	e := NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable, CategoryInternal)
	e.Retryable = true
	return e
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	e := NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout, CategoryInternal)
	e.Retryable = true
	return e
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable reports whether err (or anything it wraps) is a retryable AppError.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return false
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	return ErrInternal("").Wrap(err)
}
