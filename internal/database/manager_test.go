package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	m, err := NewManager(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, dbconfig.NewMigrationManager(m.GetDB()).ApplyMigrations())
	return m
}

func testSession(id string) *types.Session {
	return &types.Session{
		ID:          id,
		Title:       "Algebra Review",
		ClassID:     "math101",
		TeacherID:   "teacher1",
		StudentIDs:  []string{"alice", "bob"},
		ScheduledAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Status:      types.StatusScheduled,
		RoomID:      "room-" + id,
	}
}

func TestCreateAndGetSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	want := testSession("s1")
	require.NoError(t, m.CreateSession(ctx, want))

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Title, got.Title)
	require.Equal(t, want.TeacherID, got.TeacherID)
	require.Equal(t, want.StudentIDs, got.StudentIDs)
	require.Equal(t, types.StatusScheduled, got.Status)
	require.Equal(t, "room-s1", got.RoomID)
	require.Nil(t, got.EndedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, interfaces.ErrSessionNotFound)
}

func TestListSessionsByStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateSession(ctx, testSession("s1")))
	require.NoError(t, m.CreateSession(ctx, testSession("s2")))
	won, err := m.ActivateSession(ctx, "s2")
	require.NoError(t, err)
	require.True(t, won)

	scheduled, err := m.ListSessionsByStatus(ctx, types.StatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	require.Equal(t, "s1", scheduled[0].ID)

	active, err := m.ListSessionsByStatus(ctx, types.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "s2", active[0].ID)
}

func TestActivateSessionCASWinsOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, testSession("s1")))

	var mu sync.Mutex
	wins := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := m.ActivateSession(ctx, "s1")
			if err == nil && won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, types.StatusActive, got.Status)
}

func TestEndSessionCAS(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.CreateSession(ctx, testSession("s1")))

	// Ending a scheduled session loses the compare-and-set.
	won, err := m.EndSession(ctx, "s1", time.Now())
	require.NoError(t, err)
	require.False(t, won)

	_, err = m.ActivateSession(ctx, "s1")
	require.NoError(t, err)

	endedAt := time.Now().UTC().Truncate(time.Second)
	won, err = m.EndSession(ctx, "s1", endedAt)
	require.NoError(t, err)
	require.True(t, won)

	// Second end loses.
	won, err = m.EndSession(ctx, "s1", time.Now())
	require.NoError(t, err)
	require.False(t, won)

	got, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, types.StatusEnded, got.Status)
	require.NotNil(t, got.EndedAt)
}

func TestIntervalLifecycle(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(10 * time.Minute)
	t2 := t0.Add(20 * time.Minute)

	require.NoError(t, m.OpenInterval(ctx, "s1", "alice", t0))
	require.NoError(t, m.CloseInterval(ctx, "s1", "alice", t1))
	require.NoError(t, m.OpenInterval(ctx, "s1", "alice", t2))

	intervals, err := m.ListIntervals(ctx, "s1", "alice")
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	require.NotNil(t, intervals[0].LeftAt)
	require.Equal(t, t1.Unix(), intervals[0].LeftAt.Unix())
	require.Nil(t, intervals[1].LeftAt)

	// Closing when nothing is open is a no-op.
	require.NoError(t, m.CloseInterval(ctx, "s1", "bob", t2))
	bobIntervals, err := m.ListIntervals(ctx, "s1", "bob")
	require.NoError(t, err)
	require.Empty(t, bobIntervals)
}

func TestCloseAllIntervals(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := t0.Add(30 * time.Minute)
	require.NoError(t, m.OpenInterval(ctx, "s1", "alice", t0))
	require.NoError(t, m.OpenInterval(ctx, "s1", "bob", t0))
	require.NoError(t, m.OpenInterval(ctx, "other", "carol", t0))

	require.NoError(t, m.CloseAllIntervals(ctx, "s1", end))

	for _, user := range []string{"alice", "bob"} {
		intervals, err := m.ListIntervals(ctx, "s1", user)
		require.NoError(t, err)
		require.Len(t, intervals, 1)
		require.NotNil(t, intervals[0].LeftAt)
	}

	// Other sessions are untouched.
	intervals, err := m.ListIntervals(ctx, "other", "carol")
	require.NoError(t, err)
	require.Nil(t, intervals[0].LeftAt)
}

func TestTaskQueueAtLeastOnce(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	fireAt := time.Now().Add(-time.Minute)
	require.NoError(t, m.EnqueueTask(ctx, "s1", fireAt))
	require.NoError(t, m.EnqueueTask(ctx, "s2", time.Now().Add(time.Hour)))

	// Only the past task is due, and it stays due until acked.
	due, err := m.DueTasks(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, due)

	due, err = m.DueTasks(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, due)

	require.NoError(t, m.AckTask(ctx, "s1"))
	due, err = m.DueTasks(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestEnqueueTaskReplacesPending(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.EnqueueTask(ctx, "s1", time.Now().Add(time.Hour)))
	require.NoError(t, m.EnqueueTask(ctx, "s1", time.Now().Add(-time.Minute)))

	due, err := m.DueTasks(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, due)
}

func TestTasksSurviveReopen(t *testing.T) {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "test.db")
	log := slog.New(slog.DiscardHandler)

	m, err := NewManager(cfg, log)
	require.NoError(t, err)
	require.NoError(t, dbconfig.NewMigrationManager(m.GetDB()).ApplyMigrations())

	ctx := context.Background()
	require.NoError(t, m.EnqueueTask(ctx, "s1", time.Now().Add(-time.Minute)))
	require.NoError(t, m.Close())

	// A restart sees the unacked task again.
	m2, err := NewManager(cfg, log)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()
	require.NoError(t, dbconfig.NewMigrationManager(m2.GetDB()).ApplyMigrations())

	due, err := m2.DueTasks(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"s1"}, due)
}

func TestHealthCheck(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.HealthCheck(context.Background()))
}

func TestCloseIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	require.Error(t, m.CreateSession(context.Background(), testSession("s1")))
}
