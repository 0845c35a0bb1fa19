package interfaces

import "errors"

// Shared errors crossing component boundaries.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotAuthorized     = errors.New("user not authorized for this session")
	ErrSessionEnded      = errors.New("session has ended")
	ErrSessionNotStarted = errors.New("session has not started yet")
)
