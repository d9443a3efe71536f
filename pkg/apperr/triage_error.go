package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Setup errors
	CodeConfigError  = "CONFIG_ERROR"
	CodeAuthRequired = "AUTH_REQUIRED"

	// External errors
	CodeExternalError = "EXTERNAL_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeOAuthFailed   = "OAUTH_FAILED"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// ConfigError reports a missing or invalid setting.
func ConfigError(setting, reason string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: fmt.Sprintf("%s: %s", setting, reason),
		Details: map[string]any{"setting": setting},
	}
}

// AuthRequired is returned when no usable mailbox credentials exist and the
// interactive auth command has to be run first.
func AuthRequired(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthRequired,
		Message: fmt.Sprintf("%s authorization required, run `mailtriage auth`", provider),
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

func OAuthFailed(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeOAuthFailed,
		Message: fmt.Sprintf("OAuth failed for %s", provider),
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Err:     err,
	}
}

func ExternalError(service string, err error) *AppError {
	return &AppError{
		Code:    CodeExternalError,
		Message: fmt.Sprintf("external service error: %s", service),
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// Helper functions

// Is reports whether any error in err's chain is an AppError with code.
func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternalError.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}
