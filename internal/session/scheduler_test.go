package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"liveclass/pkg/types"
)

func validScheduleRequest() *types.ScheduleRequest {
	return &types.ScheduleRequest{
		Title:       "Algebra Review",
		ClassID:     "math101",
		TeacherID:   "teacher1",
		StudentIDs:  []string{"alice", "bob"},
		ScheduledAt: time.Now().Add(time.Hour).Format(time.RFC3339),
	}
}

func TestScheduleHappyPath(t *testing.T) {
	store := newMockSessionStore()
	queue := newMockQueue()
	broadcaster := &mockBroadcaster{}
	s := NewScheduler(store, queue, nil, &mockNotifier{}, broadcaster, quietLogger())

	req := validScheduleRequest()
	sessionID, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	sess, err := store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, types.StatusScheduled, sess.Status)
	require.Equal(t, "room-"+sessionID, sess.RoomID)
	require.ElementsMatch(t, []string{"alice", "bob"}, sess.StudentIDs)

	// Activation task enqueued for the scheduled time.
	fireAt, ok := queue.enqueued[sessionID]
	require.True(t, ok)
	wantAt, _ := time.Parse(time.RFC3339, req.ScheduledAt)
	require.WithinDuration(t, wantAt, fireAt, time.Second)

	// Announcement went to the class channel.
	events := broadcaster.classEvents()
	require.Len(t, events, 1)
	require.Equal(t, types.MessageTypeSessionScheduled, events[0].Type)

	var announced types.SessionScheduledEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &announced))
	require.Equal(t, sessionID, announced.SessionID)
	require.Equal(t, "Algebra Review", announced.Title)
}

func TestSchedulePastTimeFiresImmediately(t *testing.T) {
	store := newMockSessionStore()
	queue := newMockQueue()
	s := NewScheduler(store, queue, nil, nil, &mockBroadcaster{}, quietLogger())

	req := validScheduleRequest()
	req.ScheduledAt = time.Now().Add(-time.Hour).Format(time.RFC3339)

	sessionID, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)

	// Past schedules are clamped to now, never to the past.
	fireAt := queue.enqueued[sessionID]
	require.WithinDuration(t, time.Now(), fireAt, 5*time.Second)
}

func TestScheduleValidation(t *testing.T) {
	s := NewScheduler(newMockSessionStore(), newMockQueue(), nil, nil, &mockBroadcaster{}, quietLogger())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*types.ScheduleRequest)
	}{
		{"empty title", func(r *types.ScheduleRequest) { r.Title = "" }},
		{"missing class", func(r *types.ScheduleRequest) { r.ClassID = "" }},
		{"missing teacher", func(r *types.ScheduleRequest) { r.TeacherID = "" }},
		{"bad timestamp", func(r *types.ScheduleRequest) { r.ScheduledAt = "tomorrow at noon" }},
		{"no students", func(r *types.ScheduleRequest) { r.StudentIDs = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validScheduleRequest()
			tc.mutate(req)

			_, err := s.Schedule(ctx, req)
			require.Error(t, err)
			require.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestScheduleDeduplicatesStudents(t *testing.T) {
	store := newMockSessionStore()
	s := NewScheduler(store, newMockQueue(), nil, nil, &mockBroadcaster{}, quietLogger())

	req := validScheduleRequest()
	req.StudentIDs = []string{"alice", "bob", "alice"}

	sessionID, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)

	sess, err := store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, sess.StudentIDs, 2)
}

func TestScheduleResolvesRosterFromDirectory(t *testing.T) {
	store := newMockSessionStore()
	directory := &mockDirectory{students: map[string][]string{"math101": {"carol", "dave"}}}
	s := NewScheduler(store, newMockQueue(), directory, nil, &mockBroadcaster{}, quietLogger())

	req := validScheduleRequest()
	req.StudentIDs = nil

	sessionID, err := s.Schedule(context.Background(), req)
	require.NoError(t, err)

	sess, err := store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"carol", "dave"}, sess.StudentIDs)
}

func TestScheduleEnqueueFailureNotifiesTeacher(t *testing.T) {
	store := newMockSessionStore()
	queue := newMockQueue()
	queue.enqueueErr = errors.New("queue unavailable")
	notifier := &mockNotifier{}
	s := NewScheduler(store, queue, nil, notifier, &mockBroadcaster{}, quietLogger())

	_, err := s.Schedule(context.Background(), validScheduleRequest())
	require.Error(t, err)
	require.False(t, IsValidationError(err))
	require.Equal(t, 1, notifier.count())
}

func TestScheduleBroadcastFailureIsNotFatal(t *testing.T) {
	store := newMockSessionStore()
	broadcaster := &mockBroadcaster{classErr: errors.New("hub closed")}
	s := NewScheduler(store, newMockQueue(), nil, nil, broadcaster, quietLogger())

	sessionID, err := s.Schedule(context.Background(), validScheduleRequest())
	require.NoError(t, err)

	// The session is persisted and will activate even though the
	// announcement was lost.
	sess, err := store.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	require.Equal(t, types.StatusScheduled, sess.Status)
}
