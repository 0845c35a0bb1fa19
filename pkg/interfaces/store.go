package interfaces

import (
	"context"
	"time"

	"liveclass/pkg/types"
)

// SessionStore handles persistence of session records and their lifecycle
// transitions. Transitions are compare-and-set so that redelivered tasks and
// concurrent callers converge without double-firing side effects.
type SessionStore interface {
	// CreateSession persists a new session in the scheduled state.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by ID, ErrSessionNotFound if absent.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// ListSessionsByStatus returns all sessions with the given status.
	ListSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]*types.Session, error)

	// ActivateSession transitions scheduled -> active. Returns true only for
	// the caller that won the transition; false when the session was already
	// active or ended.
	ActivateSession(ctx context.Context, sessionID string) (bool, error)

	// EndSession transitions active -> ended, recording endedAt. Returns true
	// only for the caller that won the transition.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
}

// IntervalStore persists per-participant join-leave intervals.
// Records are append-and-close only, never deleted.
type IntervalStore interface {
	// OpenInterval records a join at the given time.
	OpenInterval(ctx context.Context, sessionID, userID string, joinedAt time.Time) error

	// CloseInterval closes the open interval for (sessionID, userID).
	// No-op when none is open.
	CloseInterval(ctx context.Context, sessionID, userID string, leftAt time.Time) error

	// CloseAllIntervals closes every open interval for a session.
	CloseAllIntervals(ctx context.Context, sessionID string, leftAt time.Time) error

	// ListIntervals returns all intervals for (sessionID, userID) in join order.
	ListIntervals(ctx context.Context, sessionID, userID string) ([]types.Interval, error)
}

// TaskStore persists delayed activation tasks with at-least-once delivery:
// a task stays visible to DueTasks until acked.
type TaskStore interface {
	// EnqueueTask persists an activation task firing at fireAt.
	EnqueueTask(ctx context.Context, sessionID string, fireAt time.Time) error

	// DueTasks returns the session IDs of all unacked tasks due at or before now.
	DueTasks(ctx context.Context, now time.Time) ([]string, error)

	// AckTask marks the task for sessionID as delivered.
	AckTask(ctx context.Context, sessionID string) error
}
