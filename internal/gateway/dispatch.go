package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"liveclass/pkg/types"
)

// handlerFunc consumes one decoded inbound envelope from a connection.
type handlerFunc func(ctx context.Context, connectionID string, env *types.Envelope) error

// handlers is the closed dispatch table over the inbound message set; an
// envelope type outside it is rejected with a validation error.
func (g *Gateway) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		types.MessageTypeScheduleSession: g.handleSchedule,
		types.MessageTypeJoinSession:     g.handleJoin,
		types.MessageTypeLeaveSession:    g.handleLeave,
		types.MessageTypeEndSession:      g.handleEnd,
		types.MessageTypeSubscribeRoom:   g.handleSubscribe,
	}
}

// Dispatch routes an inbound envelope to its handler and turns any handler
// error into a typed error reply to the caller only.
func (g *Gateway) Dispatch(ctx context.Context, connectionID string, env *types.Envelope) {
	if !g.limiter.Allow(connectionID) {
		g.replyError(connectionID, env.RequestID, ErrRateLimited)
		return
	}

	handler, ok := g.handlers()[env.Type]
	if !ok {
		g.replyError(connectionID, env.RequestID, fmt.Errorf("%w: %s", ErrUnknownMessageType, env.Type))
		return
	}

	if err := handler(ctx, connectionID, env); err != nil {
		g.log.Info("request rejected",
			"type", env.Type, "connection_id", connectionID,
			"code", ErrorCodeFor(err), "error", err)
		g.replyError(connectionID, env.RequestID, err)
	}
}

func (g *Gateway) handleSchedule(ctx context.Context, connectionID string, env *types.Envelope) error {
	var req types.ScheduleRequest
	if err := decode(env.Payload, &req); err != nil {
		return err
	}

	if _, err := g.scheduler.Schedule(ctx, &req); err != nil {
		return err
	}
	// The class-channel session-scheduled broadcast is the acknowledgement;
	// the scheduling client receives it like everyone else.
	return nil
}

func (g *Gateway) handleJoin(ctx context.Context, connectionID string, env *types.Envelope) error {
	var req types.JoinRequest
	if err := decode(env.Payload, &req); err != nil {
		return err
	}

	joined, err := g.Join(ctx, req.SessionID, req.ParticipantID, connectionID)
	if err != nil {
		return err
	}

	if err := g.subscriber.SubscribeRoom(connectionID, req.SessionID); err != nil {
		g.log.Warn("failed to subscribe joined connection to room",
			"session_id", req.SessionID, "connection_id", connectionID, "error", err)
	}

	reply := types.NewEnvelope(types.MessageTypeSessionJoined, env.RequestID, joined)
	if err := g.replier.Reply(connectionID, reply); err != nil {
		g.log.Warn("failed to deliver join reply",
			"session_id", req.SessionID, "connection_id", connectionID, "error", err)
	}
	return nil
}

func (g *Gateway) handleLeave(ctx context.Context, connectionID string, env *types.Envelope) error {
	var req types.LeaveRequest
	if err := decode(env.Payload, &req); err != nil {
		return err
	}
	return g.Leave(ctx, req.SessionID, req.ParticipantID)
}

func (g *Gateway) handleEnd(ctx context.Context, connectionID string, env *types.Envelope) error {
	var req types.EndRequest
	if err := decode(env.Payload, &req); err != nil {
		return err
	}
	return g.End(ctx, req.SessionID, req.CallerID)
}

func (g *Gateway) handleSubscribe(ctx context.Context, connectionID string, env *types.Envelope) error {
	var req types.SubscribeRequest
	if err := decode(env.Payload, &req); err != nil {
		return err
	}
	return g.subscriber.SubscribeRoom(connectionID, req.SessionID)
}

func (g *Gateway) replyError(connectionID, requestID string, err error) {
	reply := types.NewEnvelope(types.MessageTypeError, requestID, &types.ErrorEvent{
		Code:    ErrorCodeFor(err),
		Message: err.Error(),
	})
	if rerr := g.replier.Reply(connectionID, reply); rerr != nil {
		g.log.Warn("failed to deliver error reply",
			"connection_id", connectionID, "error", rerr)
	}
}

func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return ErrMalformedPayload
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return nil
}
