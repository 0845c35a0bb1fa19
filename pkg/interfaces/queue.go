package interfaces

import (
	"context"
	"time"
)

// ActivationQueue accepts delayed activation work. Delivery to the consumer
// is at-least-once; consumers must make their transitions idempotent.
type ActivationQueue interface {
	// Enqueue schedules activation of sessionID at fireAt. A fireAt in the
	// past fires on the next dispatch pass.
	Enqueue(ctx context.Context, sessionID string, fireAt time.Time) error
}
