package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeConflict            ErrorCode = "CONFLICT"
	CodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	CodeUnauthenticated     ErrorCode = "UNAUTHENTICATED"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeAlreadyBookmarked   ErrorCode = "ALREADY_BOOKMARKED"
	CodeNoOpChange          ErrorCode = "NO_OP_CHANGE"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeBadRequest          ErrorCode = "BAD_REQUEST"
	CodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusMap maps error codes to HTTP status codes
var HTTPStatusMap = map[ErrorCode]int{
	CodeValidation:          http.StatusBadRequest,
	CodeConflict:            http.StatusBadRequest,
	CodeInvalidCredentials:  http.StatusBadRequest,
	CodeUnauthenticated:     http.StatusUnauthorized,
	CodeNotFound:            http.StatusNotFound,
	CodeAlreadyBookmarked:   http.StatusBadRequest,
	CodeNoOpChange:          http.StatusBadRequest,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeIdempotencyConflict: http.StatusConflict,
	CodeBadRequest:          http.StatusBadRequest,
	CodeInternalError:       http.StatusInternalServerError,
}

// ErrorResponse is the envelope written for failed requests
type ErrorResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
	TraceID string    `json:"trace_id,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// AppError represents an application error with code and message
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error

	// Status overrides the code's default HTTP status when non-zero.
	Status int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorf creates a new AppError with formatted message
func NewAppErrorf(code ErrorCode, cause error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WithStatus returns the error with an explicit HTTP status
func (e *AppError) WithStatus(status int) *AppError {
	e.Status = status
	return e
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if status, exists := HTTPStatusMap[e.Code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse converts AppError to ErrorResponse. The cause text is only
// exposed for internal errors and only when exposeCause is set.
func (e *AppError) ToErrorResponse(traceID string, exposeCause bool) ErrorResponse {
	resp := ErrorResponse{
		Success: false,
		Message: e.Message,
		Code:    e.Code,
		TraceID: traceID,
	}
	if exposeCause && e.Code == CodeInternalError && e.Cause != nil {
		resp.Error = e.Cause.Error()
	}
	return resp
}

// Validation builds a VALIDATION_ERROR
func Validation(message string) *AppError {
	return NewAppError(CodeValidation, message, nil)
}

// Conflict builds a CONFLICT error
func Conflict(message string) *AppError {
	return NewAppError(CodeConflict, message, nil)
}

// NotFound builds a NOT_FOUND error
func NotFound(message string) *AppError {
	return NewAppError(CodeNotFound, message, nil)
}

// Unauthenticated builds an UNAUTHENTICATED error
func Unauthenticated(message string) *AppError {
	return NewAppError(CodeUnauthenticated, message, nil)
}

// Internal wraps an infrastructure failure
func Internal(message string, cause error) *AppError {
	return NewAppError(CodeInternalError, message, cause)
}

// As extracts an AppError from err
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// WrapError wraps an error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return &AppError{Code: appErr.Code, Message: message, Cause: err, Status: appErr.Status}
	}
	return NewAppError(CodeInternalError, message, err)
}
