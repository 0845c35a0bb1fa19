package session

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyStudentList = errors.New("student list cannot be empty")
	ErrBadScheduledAt   = errors.New("scheduled_at is not a valid RFC 3339 timestamp")
)

// ValidationError rejects a malformed schedule request synchronously, with
// no side effects.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid schedule request: %s", e.Reason)
}

// IsValidationError reports whether err is a schedule validation rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
