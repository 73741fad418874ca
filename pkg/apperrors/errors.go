// Package apperrors defines the error classes shared across packages. Each
// package declares its own sentinels wrapping one of these, and the HTTP
// layer maps a class to a status code with errors.Is.
package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrForbidden     = errors.New("insufficient permissions")
	ErrLimitExceeded = errors.New("quota exceeded")
)
