package client

import "errors"

var (
	ErrJoinInFlight   = errors.New("join request already in flight")
	ErrJoinTimeout    = errors.New("join request timed out")
	ErrNotAwaiting    = errors.New("no session awaited")
	ErrSessionClosed  = errors.New("session has ended")
	ErrMediaDegraded  = errors.New("camera unavailable, continuing audio-only")
	ErrRequestPending = errors.New("request is still pending")
)

// RecoverableError wraps failures the client survives: the session state
// machine keeps running and the caller may retry or continue degraded.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string { return e.Err.Error() }
func (e *RecoverableError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err is a non-fatal client error.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}
