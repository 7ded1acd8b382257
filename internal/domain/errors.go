package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for license resolution and validation. All of these are
// recoverable conditions, surfaced as 4xx responses with a stable reason.
var (
	ErrNoActiveLicense = errors.New("no active license found")
	ErrInvalidKey      = errors.New("invalid license key")
	ErrLicenseExpired  = errors.New("license has expired")
	ErrLicenseRevoked  = errors.New("license has been revoked")
	ErrDeviceLimit     = errors.New("device limit reached")

	// ErrDuplicateLicense means an active license already exists for the
	// (account, billing subscription) pair. The registry swallows it by
	// returning the existing license; it never reaches a caller.
	ErrDuplicateLicense = errors.New("license already issued for subscription")

	// ErrBadSignature means the webhook payload failed signature
	// verification. No state changes when it is returned.
	ErrBadSignature = errors.New("webhook signature verification failed")
)

// ErrorReason returns the stable reason string the validate endpoint
// reports for a license error, or "" for errors without one.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveLicense):
		return "No active license found"
	case errors.Is(err, ErrInvalidKey):
		return "Invalid license key"
	case errors.Is(err, ErrLicenseExpired):
		return "License has expired"
	case errors.Is(err, ErrLicenseRevoked):
		return "License has been revoked"
	case errors.Is(err, ErrDeviceLimit):
		return "Device limit reached"
	default:
		return ""
	}
}

// AppError is a structured application error with HTTP status code.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
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

// Common error constructors.

func ErrNotFound(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: msg}
}

func ErrBadRequest(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Message: msg}
}

func ErrConflict(msg string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: msg}
}

func ErrInternal(msg string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: msg, Err: err}
}

// AsAppError attempts to extract an AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
