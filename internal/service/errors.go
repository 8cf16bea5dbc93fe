package service

import (
	"fmt"
	"time"

	"citizen-voice/pkg/apierror"
)

// LockedError is returned while a login identifier is locked out.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %d seconds", e.RetryAfterSeconds())
}

func (e *LockedError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

func validationError(message string, details string) error {
	return apierror.Validation(message, details)
}
