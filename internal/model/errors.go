package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidTransition  = errors.New("invalid lifecycle transition")

	// Token related errors
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenReused  = errors.New("refresh token reused")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")

	// Complaint related errors
	ErrComplaintNotFound = errors.New("complaint not found")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrCSRFMismatch = errors.New("csrf token mismatch")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

// RefreshReuseError is returned by credential stores when a refresh token that was
// already rotated or revoked is presented again.
type RefreshReuseError struct {
	UserID string
}

func (e *RefreshReuseError) Error() string {
	return ErrRefreshTokenReused.Error()
}

func (e *RefreshReuseError) Is(target error) bool {
	return target == ErrRefreshTokenReused || target == ErrInvalidRefreshToken
}
