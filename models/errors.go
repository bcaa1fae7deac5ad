package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeNotProfile    = "NOT_PROFILE_PAGE"
	ErrCodeNoPosts       = "NO_POSTS_FOUND"
	ErrCodeTimeout       = "SCRAPE_TIMEOUT"
	ErrCodeCanceled      = "SCRAPE_CANCELED"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeRemoteService = "REMOTE_SERVICE_ERROR"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeQueueFull     = "QUEUE_FULL"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is the internal error type carrying an error code.
// StatusCode is set for RemoteServiceError and holds the upstream HTTP status.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// PreconditionError reports that the page is not a profile page.
func PreconditionError(message string) *Error {
	return &Error{Code: ErrCodeNotProfile, Message: message}
}

// RemoteServiceError reports a failed classification call. status is the
// upstream HTTP status, or 0 when the response never arrived or was malformed.
func RemoteServiceError(status int, message string, err error) *Error {
	return &Error{Code: ErrCodeRemoteService, Message: message, StatusCode: status, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *Error) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// AsError returns err as an *Error, wrapping foreign errors as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrCodeInternal, err.Error(), err)
}
