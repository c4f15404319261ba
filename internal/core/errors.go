// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Auth errors
	ErrAuthRejected       = &Error{Code: "AUTH_REJECTED", Message: "authentication rejected"}
	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Message: "credentials incomplete"}
	ErrInvalidState       = &Error{Code: "INVALID_STATE", Message: "operation not allowed in current session state"}
	ErrNotLoggedIn        = &Error{Code: "NOT_LOGGED_IN", Message: "not logged in"}

	// Transport errors
	ErrTransport = &Error{Code: "TRANSPORT_FAILURE", Message: "request failed"}

	// Catalog and backtest errors
	ErrCatalogFetch       = &Error{Code: "CATALOG_FETCH_FAILED", Message: "strategy catalog fetch failed"}
	ErrNoStrategySelected = &Error{Code: "NO_STRATEGY_SELECTED", Message: "please select a strategy"}
	ErrBacktestFailed     = &Error{Code: "BACKTEST_FAILED", Message: "backtest failed"}

	// Store errors
	ErrStore = &Error{Code: "STORE_FAILED", Message: "session store operation failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)

// RemoteError is a non-2xx answer from the backend.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
}

// UserMessage picks the text shown to the user for err: the backend detail
// when there is one, else the innermost cause of a coded error, else err
// itself. The result is never empty for a non-nil err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var remote *RemoteError
	if errors.As(err, &remote) {
		if remote.Detail != "" {
			return remote.Detail
		}
		if text := http.StatusText(remote.Status); text != "" {
			return text
		}
		return remote.Error()
	}

	var coded *Error
	if errors.As(err, &coded) {
		if coded.Cause != nil && coded.Cause.Error() != "" {
			return coded.Cause.Error()
		}
		return coded.Message
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}
