package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

const activationMaxTries = 3

// Worker performs the scheduled -> active transition when an activation
// task fires. The task queue delivers at least once, so every step here is
// idempotent: the status compare-and-set makes redelivery a no-op and only
// the CAS winner broadcasts the start event.
type Worker struct {
	store       interfaces.SessionStore
	broadcaster interfaces.Broadcaster
	notifier    interfaces.Notifier
	log         *slog.Logger
}

// NewWorker creates a lifecycle worker.
func NewWorker(
	store interfaces.SessionStore,
	broadcaster interfaces.Broadcaster,
	notifier interfaces.Notifier,
	log *slog.Logger,
) *Worker {
	return &Worker{
		store:       store,
		broadcaster: broadcaster,
		notifier:    notifier,
		log:         log,
	}
}

// HandleActivation consumes one fired task. It always returns nil so the
// task is acked: transient failures are retried with bounded backoff here,
// and a permanent failure is logged and reported to the teacher rather than
// redelivered forever, leaving the session scheduled for manual restart.
func (w *Worker) HandleActivation(ctx context.Context, sessionID string) error {
	sess, err := w.loadSession(ctx, sessionID)
	if errors.Is(err, interfaces.ErrSessionNotFound) {
		w.log.Info("activation task for unknown session, dropping", "session_id", sessionID)
		return nil
	}
	if err != nil {
		w.reportFailure(ctx, sessionID, "", restartNotice(sessionID), fmt.Errorf("loading session: %w", err))
		return nil
	}

	if sess.Status != types.StatusScheduled {
		// Redelivered task or a session already past activation.
		w.log.Info("activation no-op, session not scheduled",
			"session_id", sessionID, "status", sess.Status)
		return nil
	}

	won, err := w.activate(ctx, sessionID)
	if err != nil {
		// The session is still scheduled, so a restart is the recovery.
		w.reportFailure(ctx, sessionID, sess.TeacherID, restartNotice(sessionID),
			fmt.Errorf("activating session: %w", err))
		return nil
	}
	if !won {
		w.log.Info("activation lost compare-and-set, already transitioned", "session_id", sessionID)
		return nil
	}

	event := types.NewEnvelope(types.MessageTypeSessionStart, "", &types.SessionStartEvent{
		SessionID: sessionID,
		Title:     sess.Title,
	})
	if err := w.broadcast(ctx, sess.ClassID, event); err != nil {
		// The transition already committed: the session is active and
		// clients recover by joining it directly, so the notice must not
		// promise a restart.
		msg := fmt.Sprintf("session %s is active but the start announcement could not be delivered, ask participants to join directly", sessionID)
		w.reportFailure(ctx, sessionID, sess.TeacherID, msg, fmt.Errorf("broadcasting start: %w", err))
		return nil
	}

	w.log.Info("session activated", "session_id", sessionID, "title", sess.Title)
	return nil
}

func (w *Worker) loadSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return backoff.Retry(ctx, func() (*types.Session, error) {
		sess, err := w.store.GetSession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, interfaces.ErrSessionNotFound) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return sess, nil
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(activationMaxTries))
}

func (w *Worker) activate(ctx context.Context, sessionID string) (bool, error) {
	return backoff.Retry(ctx, func() (bool, error) {
		return w.store.ActivateSession(ctx, sessionID)
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(activationMaxTries))
}

func (w *Worker) broadcast(ctx context.Context, classID string, env *types.Envelope) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.broadcaster.ToClass(classID, env)
	}, backoff.WithBackOff(newBackOff()), backoff.WithMaxTries(activationMaxTries))
	return err
}

// reportFailure logs a permanent activation failure and tells the teacher.
// Notification delivery is an external collaborator; its failures are only
// logged.
func (w *Worker) reportFailure(ctx context.Context, sessionID, teacherID, msg string, err error) {
	w.log.Error("session activation failed permanently",
		"session_id", sessionID, "error", err)
	if w.notifier == nil || teacherID == "" {
		return
	}
	if nerr := w.notifier.Notify(ctx, teacherID, msg); nerr != nil {
		w.log.Warn("failed to notify teacher of activation failure",
			"teacher_id", teacherID, "error", nerr)
	}
}

func restartNotice(sessionID string) string {
	return fmt.Sprintf("session %s failed to start automatically, please restart it", sessionID)
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}
