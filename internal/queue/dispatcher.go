package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"liveclass/pkg/interfaces"
)

// Handler consumes a fired activation task. A nil return acks the task;
// an error leaves it unacked for redelivery on a later pass.
type Handler func(ctx context.Context, sessionID string) error

// Dispatcher drives the durable delayed-task queue: tasks live in the task
// store until acked, so a crash between firing and acking redelivers the
// task on restart. Consumers get at-least-once delivery.
type Dispatcher struct {
	store        interfaces.TaskStore
	handler      Handler
	log          *slog.Logger
	pollInterval time.Duration
	wake         chan struct{}
}

var _ interfaces.ActivationQueue = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher polling the store every pollInterval.
func NewDispatcher(store interfaces.TaskStore, handler Handler, pollInterval time.Duration, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        store,
		handler:      handler,
		log:          log,
		pollInterval: pollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// Enqueue persists the task and nudges the dispatch loop so zero-delay
// schedules fire without waiting a full poll interval.
func (d *Dispatcher) Enqueue(ctx context.Context, sessionID string, fireAt time.Time) error {
	if err := d.store.EnqueueTask(ctx, sessionID, fireAt); err != nil {
		return fmt.Errorf("failed to enqueue activation task: %w", err)
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run dispatches due tasks until ctx is cancelled. Pending tasks persisted
// before a restart are picked up on the first pass.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	d.dispatchDue(ctx)

	for {
		select {
		case <-ticker.C:
			d.dispatchDue(ctx)
		case <-d.wake:
			d.dispatchDue(ctx)
		case <-ctx.Done():
			d.log.Info("task dispatcher stopping")
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) dispatchDue(ctx context.Context) {
	sessionIDs, err := d.store.DueTasks(ctx, time.Now())
	if err != nil {
		d.log.Error("failed to poll due tasks", "error", err)
		return
	}

	for _, sessionID := range sessionIDs {
		if ctx.Err() != nil {
			return
		}
		if err := d.handler(ctx, sessionID); err != nil {
			// Left unacked; redelivered on a later pass.
			d.log.Warn("task handler failed, will redeliver",
				"session_id", sessionID, "error", err)
			continue
		}
		if err := d.store.AckTask(ctx, sessionID); err != nil {
			// The handler is idempotent, so a redelivered ack-failure
			// converges on the next pass.
			d.log.Error("failed to ack task", "session_id", sessionID, "error", err)
		}
	}
}
