package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in run reports, API responses and internal error handling.
const (
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeSelectorNotFound = "SELECTOR_NOT_FOUND"
	ErrCodeHandler          = "HANDLER_FAILED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeUnsupported      = "UNSUPPORTED_ACTIVITY"
	ErrCodeStore            = "STORE_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunError is the internal error type carrying an error code.
type RunError struct {
	Code    string
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError creates a new RunError.
func NewRunError(code, message string, err error) *RunError {
	return &RunError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *RunError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the outermost RunError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ErrCodeInternal
}

// IsTransient reports whether err is worth another attempt. Cancellation of
// the parent context is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var re *RunError
	if errors.As(err, &re) {
		switch re.Code {
		case ErrCodeTimeout, ErrCodeNavigation, ErrCodeSelectorNotFound, ErrCodeHandler:
			return true
		default:
			return false
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}
