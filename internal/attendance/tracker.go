package attendance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

type pairKey struct {
	sessionID string
	userID    string
}

// Tracker records join-leave intervals per (session, user), keeping an
// in-memory index for aggregation and writing through to the interval
// store so records survive restarts.
type Tracker struct {
	store interfaces.IntervalStore
	log   *slog.Logger

	mu        sync.RWMutex
	intervals map[pairKey][]types.Interval
	open      map[string]map[string]bool // sessionID -> userID -> open interval
}

var _ interfaces.DurationTracker = (*Tracker)(nil)

// NewTracker creates a tracker over the given interval store.
func NewTracker(store interfaces.IntervalStore, log *slog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		log:       log,
		intervals: make(map[pairKey][]types.Interval),
		open:      make(map[string]map[string]bool),
	}
}

// RecordJoin opens a new interval. A double open should not happen given
// the gateway guards; it is logged and ignored rather than corrupting the
// one-open-interval invariant.
func (t *Tracker) RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open[sessionID][userID] {
		t.log.Warn("interval already open, ignoring join record",
			"session_id", sessionID, "user_id", userID)
		return
	}

	key := pairKey{sessionID, userID}
	t.intervals[key] = append(t.intervals[key], types.Interval{JoinedAt: at})
	if t.open[sessionID] == nil {
		t.open[sessionID] = make(map[string]bool)
	}
	t.open[sessionID][userID] = true

	if err := t.store.OpenInterval(ctx, sessionID, userID, at); err != nil {
		t.log.Error("failed to persist interval open",
			"session_id", sessionID, "user_id", userID, "error", err)
	}
}

// RecordLeave closes the open interval. No-op when none is open.
func (t *Tracker) RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open[sessionID][userID] {
		return
	}
	t.closeLocked(sessionID, userID, at)

	if err := t.store.CloseInterval(ctx, sessionID, userID, at); err != nil {
		t.log.Error("failed to persist interval close",
			"session_id", sessionID, "user_id", userID, "error", err)
	}
}

// CloseAll force-closes every open interval for a session, used when the
// teacher ends the session with participants still connected.
func (t *Tracker) CloseAll(ctx context.Context, sessionID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for userID := range t.open[sessionID] {
		t.closeLocked(sessionID, userID, at)
	}
	delete(t.open, sessionID)

	if err := t.store.CloseAllIntervals(ctx, sessionID, at); err != nil {
		t.log.Error("failed to persist session interval close",
			"session_id", sessionID, "error", err)
	}
}

// closeLocked closes the most recent open interval. Caller holds t.mu.
func (t *Tracker) closeLocked(sessionID, userID string, at time.Time) {
	key := pairKey{sessionID, userID}
	spans := t.intervals[key]
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].LeftAt == nil {
			leftAt := at
			spans[i].LeftAt = &leftAt
			break
		}
	}
	if t.open[sessionID] != nil {
		delete(t.open[sessionID], userID)
	}
}

// Aggregate returns total connected time for (sessionID, userID) as of
// asOf: the sum over closed intervals plus the elapsed part of an open one.
func (t *Tracker) Aggregate(ctx context.Context, sessionID, userID string, asOf time.Time) (time.Duration, error) {
	t.mu.RLock()
	spans, ok := t.intervals[pairKey{sessionID, userID}]
	if ok {
		spans = append([]types.Interval(nil), spans...)
	}
	t.mu.RUnlock()

	if !ok {
		// Cold cache after a restart: fall back to the store.
		stored, err := t.store.ListIntervals(ctx, sessionID, userID)
		if err != nil {
			return 0, err
		}
		spans = stored
	}

	var total time.Duration
	for _, span := range spans {
		if span.LeftAt != nil {
			total += span.LeftAt.Sub(span.JoinedAt)
		} else if asOf.After(span.JoinedAt) {
			total += asOf.Sub(span.JoinedAt)
		}
	}
	return total, nil
}
