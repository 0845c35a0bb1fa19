package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Scheduler validates and persists new sessions and enqueues their delayed
// activation. Activation itself is solely the lifecycle worker's job; an
// immediate start is just a schedule with zero delay.
type Scheduler struct {
	store       interfaces.SessionStore
	queue       interfaces.ActivationQueue
	directory   interfaces.ClassDirectory
	notifier    interfaces.Notifier
	broadcaster interfaces.Broadcaster
	validate    *validator.Validate
	log         *slog.Logger
	now         func() time.Time
}

// NewScheduler creates a scheduler. directory may be nil when callers always
// supply explicit student lists.
func NewScheduler(
	store interfaces.SessionStore,
	queue interfaces.ActivationQueue,
	directory interfaces.ClassDirectory,
	notifier interfaces.Notifier,
	broadcaster interfaces.Broadcaster,
	log *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store:       store,
		queue:       queue,
		directory:   directory,
		notifier:    notifier,
		broadcaster: broadcaster,
		validate:    validator.New(),
		log:         log,
		now:         time.Now,
	}
}

// Schedule validates the request, persists the session as scheduled,
// enqueues the delayed activation task and announces the upcoming session
// on the class channel. Returns the session ID synchronously; it never
// waits for the activation task to execute.
func (s *Scheduler) Schedule(ctx context.Context, req *types.ScheduleRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", &ValidationError{Reason: err.Error()}
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		return "", &ValidationError{Reason: ErrBadScheduledAt.Error()}
	}

	studentIDs := lo.Uniq(req.StudentIDs)
	if len(studentIDs) == 0 && s.directory != nil {
		studentIDs, err = s.directory.StudentsOf(ctx, req.ClassID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve class roster: %w", err)
		}
	}
	if len(studentIDs) == 0 {
		return "", &ValidationError{Reason: ErrEmptyStudentList.Error()}
	}

	sessionID := uuid.New().String()
	sess := &types.Session{
		ID:          sessionID,
		Title:       req.Title,
		ClassID:     req.ClassID,
		TeacherID:   req.TeacherID,
		StudentIDs:  studentIDs,
		ScheduledAt: scheduledAt,
		Status:      types.StatusScheduled,
		RoomID:      "room-" + sessionID,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	fireAt := scheduledAt
	if now := s.now(); fireAt.Before(now) {
		fireAt = now
	}
	if err := s.queue.Enqueue(ctx, sessionID, fireAt); err != nil {
		// The session is persisted but will not activate on its own; the
		// teacher gets a notification so it can be restarted manually.
		s.log.Error("failed to enqueue activation task",
			"session_id", sessionID, "error", err)
		s.notifyTeacher(ctx, sess.TeacherID,
			fmt.Sprintf("session %q could not be scheduled for automatic start", sess.Title))
		return "", fmt.Errorf("failed to enqueue activation: %w", err)
	}

	event := types.NewEnvelope(types.MessageTypeSessionScheduled, "", &types.SessionScheduledEvent{
		SessionID:   sessionID,
		Title:       sess.Title,
		ScheduledAt: scheduledAt,
	})
	if err := s.broadcaster.ToClass(sess.ClassID, event); err != nil {
		// Announcement only; the session is persisted and will activate.
		s.log.Warn("failed to announce scheduled session",
			"session_id", sessionID, "class_id", sess.ClassID, "error", err)
	}

	s.log.Info("session scheduled",
		"session_id", sessionID, "title", sess.Title,
		"class_id", sess.ClassID, "scheduled_at", scheduledAt,
		"students", len(studentIDs))
	return sessionID, nil
}

func (s *Scheduler) notifyTeacher(ctx context.Context, teacherID, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, teacherID, message); err != nil {
		s.log.Warn("failed to notify teacher", "teacher_id", teacherID, "error", err)
	}
}
