package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"liveclass/internal/session"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// RoomSubscriber attaches a connection to a session room channel so it
// receives roster updates and the ended event.
type RoomSubscriber interface {
	SubscribeRoom(connectionID, sessionID string) error
}

// Gateway is the signaling control plane: join, leave and end handling over
// the shared roster and duration records. Handlers are stateless and either
// idempotent or compare-and-set guarded, so concurrent duplicates (join
// storms, double end) converge.
type Gateway struct {
	store       interfaces.SessionStore
	registry    interfaces.ParticipantRegistry
	tracker     interfaces.DurationTracker
	issuer      interfaces.CredentialIssuer
	broadcaster interfaces.Broadcaster
	replier     interfaces.Replier
	subscriber  RoomSubscriber
	scheduler   *session.Scheduler
	limiter     *RateLimiter
	log         *slog.Logger
	now         func() time.Time
}

// NewGateway creates the signaling gateway.
func NewGateway(
	store interfaces.SessionStore,
	registry interfaces.ParticipantRegistry,
	tracker interfaces.DurationTracker,
	issuer interfaces.CredentialIssuer,
	broadcaster interfaces.Broadcaster,
	replier interfaces.Replier,
	subscriber RoomSubscriber,
	scheduler *session.Scheduler,
	log *slog.Logger,
) *Gateway {
	return &Gateway{
		store:       store,
		registry:    registry,
		tracker:     tracker,
		issuer:      issuer,
		broadcaster: broadcaster,
		replier:     replier,
		subscriber:  subscriber,
		scheduler:   scheduler,
		limiter:     NewRateLimiter(),
		log:         log,
		now:         time.Now,
	}
}

// Join admits a participant into an active session: issues the media token,
// upserts the roster (replacing any prior connection for the participant),
// opens the duration interval and broadcasts the new roster to the room.
// Token issuance comes first so a media failure leaves all state untouched.
func (g *Gateway) Join(ctx context.Context, sessionID, participantID, connectionID string) (*types.SessionJoinedEvent, error) {
	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(participantID) {
		return nil, interfaces.ErrNotAuthorized
	}
	switch sess.Status {
	case types.StatusEnded:
		return nil, interfaces.ErrSessionEnded
	case types.StatusScheduled:
		// An eager join racing the activation task is rejected, never
		// auto-activated: the lifecycle worker is the only activation
		// authority.
		return nil, interfaces.ErrSessionNotStarted
	}

	token, err := g.issuer.IssueToken(ctx, sess.RoomID, participantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMediaUnavailable, err)
	}

	g.registry.Upsert(sessionID, participantID, connectionID)
	g.tracker.RecordJoin(ctx, sessionID, participantID, g.now())

	// A concurrent End can commit between the status check above and these
	// mutations. Re-read the status now that the roster entry exists:
	// either the end committed first and this undoes the join, or it
	// commits later and its teardown sweeps the entry. Neither order
	// strands roster state or an open interval on an ended session.
	current, err := g.store.GetSession(ctx, sessionID)
	if err != nil || current.Status == types.StatusEnded {
		g.tracker.RecordLeave(ctx, sessionID, participantID, g.now())
		g.registry.Remove(sessionID, participantID)
		if err != nil {
			return nil, err
		}
		return nil, interfaces.ErrSessionEnded
	}

	participants := g.registry.List(sessionID)
	g.broadcastRoster(sessionID, participants)

	g.log.Info("participant joined",
		"session_id", sessionID, "participant_id", participantID,
		"roster_size", len(participants))

	return &types.SessionJoinedEvent{
		SessionID:    sessionID,
		RoomID:       sess.RoomID,
		Token:        token,
		Participants: participants,
	}, nil
}

// Leave removes a participant from the roster and closes their duration
// interval. Idempotent: leaving twice is a no-op the second time.
func (g *Gateway) Leave(ctx context.Context, sessionID, participantID string) error {
	if _, connected := g.registry.Connection(sessionID, participantID); !connected {
		return nil
	}

	g.tracker.RecordLeave(ctx, sessionID, participantID, g.now())
	g.registry.Remove(sessionID, participantID)
	g.broadcastRoster(sessionID, g.registry.List(sessionID))

	g.log.Info("participant left",
		"session_id", sessionID, "participant_id", participantID)
	return nil
}

// End terminates an active session. Teacher-only. The compare-and-set on
// status means concurrent callers all observe success while exactly one of
// them broadcasts the ended event and tears down roster, intervals and the
// media room.
func (g *Gateway) End(ctx context.Context, sessionID, callerID string) error {
	sess, err := g.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if callerID != sess.TeacherID {
		return interfaces.ErrNotAuthorized
	}
	if sess.Status == types.StatusEnded {
		return nil
	}
	if sess.Status == types.StatusScheduled {
		return interfaces.ErrSessionNotStarted
	}

	won, err := g.store.EndSession(ctx, sessionID, g.now())
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if !won {
		// Lost the race to a concurrent end: already terminated.
		return nil
	}

	event := types.NewEnvelope(types.MessageTypeSessionEnded, "", &types.SessionEndedEvent{
		SessionID: sessionID,
	})
	if err := g.broadcaster.ToRoom(sessionID, event); err != nil {
		g.log.Warn("failed to broadcast session ended",
			"session_id", sessionID, "error", err)
	}

	g.tracker.CloseAll(ctx, sessionID, g.now())
	g.registry.RemoveAll(sessionID)

	// Control-plane state is committed; provider-side release is
	// best-effort.
	if err := g.issuer.ReleaseRoom(ctx, sess.RoomID); err != nil {
		g.log.Warn("failed to release media room",
			"session_id", sessionID, "room_id", sess.RoomID, "error", err)
	}

	g.log.Info("session ended", "session_id", sessionID, "teacher_id", callerID)
	return nil
}

func (g *Gateway) broadcastRoster(sessionID string, participants []string) {
	event := types.NewEnvelope(types.MessageTypeParticipantsUpdated, "", &types.ParticipantsUpdatedEvent{
		SessionID:    sessionID,
		Participants: participants,
	})
	if err := g.broadcaster.ToRoom(sessionID, event); err != nil {
		g.log.Warn("failed to broadcast roster update",
			"session_id", sessionID, "error", err)
	}
}

// ErrorCodeFor maps a handler error to its stable wire reason code.
func ErrorCodeFor(err error) string {
	switch {
	case session.IsValidationError(err):
		return types.ErrCodeValidation
	case errors.Is(err, interfaces.ErrSessionNotFound):
		return types.ErrCodeNotFound
	case errors.Is(err, interfaces.ErrNotAuthorized):
		return types.ErrCodeNotAuthorized
	case errors.Is(err, interfaces.ErrSessionEnded):
		return types.ErrCodeSessionEnded
	case errors.Is(err, interfaces.ErrSessionNotStarted):
		return types.ErrCodeSessionNotStarted
	case errors.Is(err, ErrMediaUnavailable):
		return types.ErrCodeMediaUnavailable
	case errors.Is(err, ErrRateLimited):
		return types.ErrCodeRateLimited
	case errors.Is(err, ErrUnknownMessageType), errors.Is(err, ErrMalformedPayload):
		return types.ErrCodeValidation
	default:
		return types.ErrCodeInternal
	}
}
