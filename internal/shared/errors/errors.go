// Package errors provides application-level error types and utilities.
// Every failure a caller is expected to branch on (no node available, link not
// connected, track not found...) is an *AppError with a distinct ErrorType.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeInternal        ErrorType = "internal_error"
	ErrorTypeNotConnected    ErrorType = "not_connected"
	ErrorTypeUnderflow       ErrorType = "underflow"
	ErrorTypeMaxAttempts     ErrorType = "max_connect_attempts"
	ErrorTypeProtocol        ErrorType = "protocol_error"
	ErrorTypeNotSeekable     ErrorType = "not_seekable"
	ErrorTypePlayerDestroyed ErrorType = "player_destroyed"
	ErrorTypeNoMatches       ErrorType = "no_matches"
	ErrorTypeLoadFailed      ErrorType = "load_failed"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is reports whether target is an *AppError of the same type, so that
// errors.Is(err, errors.NewUnderflowError("")) style checks work.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

func newAppError(t ErrorType, code int, message string, details []string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: detail,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details)
}

// NewNotConnectedError is returned when a packet is sent on a link that is
// neither connected nor connecting.
func NewNotConnectedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotConnected, http.StatusServiceUnavailable, message, details)
}

// NewUnderflowError signals that node selection had nothing to choose from.
func NewUnderflowError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnderflow, http.StatusServiceUnavailable, message, details)
}

// NewMaxAttemptsError signals that a link gave up reconnecting.
func NewMaxAttemptsError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeMaxAttempts, http.StatusServiceUnavailable, message, details)
}

// NewProtocolError covers handshake rejections and malformed node responses.
func NewProtocolError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeProtocol, http.StatusBadGateway, message, details)
}

// NewNotSeekableError creates a new not seekable error
func NewNotSeekableError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotSeekable, http.StatusConflict, message, details)
}

// NewPlayerDestroyedError creates a new player destroyed error
func NewPlayerDestroyedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypePlayerDestroyed, http.StatusGone, message, details)
}

// NewNoMatchesError is returned when a track search found nothing.
func NewNoMatchesError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNoMatches, http.StatusNotFound, message, details)
}

// NewLoadFailedError is returned when the node failed to load a track.
func NewLoadFailedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeLoadFailed, http.StatusUnprocessableEntity, message, details)
}

// IsAppError checks if the error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether err wraps an AppError of type t.
func IsType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsNotConnectedError checks if the error is a not connected error
func IsNotConnectedError(err error) bool {
	return IsType(err, ErrorTypeNotConnected)
}

// IsUnderflowError checks if the error is an underflow error
func IsUnderflowError(err error) bool {
	return IsType(err, ErrorTypeUnderflow)
}

// IsMaxAttemptsError checks if the error is a max attempts error
func IsMaxAttemptsError(err error) bool {
	return IsType(err, ErrorTypeMaxAttempts)
}

// IsProtocolError checks if the error is a protocol error
func IsProtocolError(err error) bool {
	return IsType(err, ErrorTypeProtocol)
}

// IsNoMatchesError checks if the error is a no matches error
func IsNoMatchesError(err error) bool {
	return IsType(err, ErrorTypeNoMatches)
}

// IsLoadFailedError checks if the error is a load failed error
func IsLoadFailedError(err error) bool {
	return IsType(err, ErrorTypeLoadFailed)
}
