package interfaces

import (
	"context"
	"time"
)

// DurationTracker records connected time per (session, user) as join-leave
// intervals. At most one interval may be open per pair at any time.
type DurationTracker interface {
	// RecordJoin opens a new interval. A double open is logged and ignored.
	RecordJoin(ctx context.Context, sessionID, userID string, at time.Time)

	// RecordLeave closes the open interval. No-op when none is open.
	RecordLeave(ctx context.Context, sessionID, userID string, at time.Time)

	// CloseAll force-closes every open interval for a session.
	CloseAll(ctx context.Context, sessionID string, at time.Time)

	// Aggregate returns total connected time: the sum over closed intervals
	// plus asOf minus the start of an open interval, if one exists.
	Aggregate(ctx context.Context, sessionID, userID string, asOf time.Time) (time.Duration, error)
}
