package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveclass/pkg/types"
)

// State is the client session lifecycle. Transitions only ever happen under
// the client mutex, driven by local calls and by server events.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingSession State = "awaiting_session"
	StateJoinRequested   State = "join_requested"
	StateConnected       State = "connected"
	StateLeaving         State = "leaving"
)

const (
	defaultJoinTimeout     = 10 * time.Second
	defaultTeardownTimeout = 3 * time.Second
)

// Signaler sends envelopes to the signaling server. The WebSocket transport
// satisfies this; tests use an in-memory fake.
type Signaler interface {
	Send(env *types.Envelope) error
}

// pendingRequest tracks one in-flight correlated request. Exactly one of the
// channels fires: reply, error reply, or timeout handled by the waiter.
type pendingRequest struct {
	msgType string
	reply   chan *types.Envelope
}

// Client is the session state machine for one participant. It awaits a
// scheduled session, joins when the server announces the start, holds local
// media while connected, and tears everything down on leave or session end.
type Client struct {
	userID  string
	signal  Signaler
	devices MediaDevices
	log     *slog.Logger

	joinTimeout     time.Duration
	teardownTimeout time.Duration

	mu           sync.Mutex
	state        State
	sessionID    string
	roster       []string
	pending      map[string]*pendingRequest
	media        *localMedia
	renderer     *remoteRenderer
	joinSettled  chan struct{}
	endedPending bool

	onStateChange func(State)
	onError       func(error)
}

// Option configures a Client.
type Option func(*Client)

// WithJoinTimeout overrides how long a join request may stay unanswered.
func WithJoinTimeout(d time.Duration) Option {
	return func(c *Client) { c.joinTimeout = d }
}

// WithTeardownTimeout bounds media release during leave and session end.
func WithTeardownTimeout(d time.Duration) Option {
	return func(c *Client) { c.teardownTimeout = d }
}

// WithStateChange registers a callback fired after every state transition.
func WithStateChange(fn func(State)) Option {
	return func(c *Client) { c.onStateChange = fn }
}

// WithErrorHandler registers a callback for recoverable errors surfaced
// outside a method call, such as media degradation during join.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Client) { c.onError = fn }
}

// WithRemoteAttach registers the render hook for remote participants' media.
func WithRemoteAttach(fn func(participantID, kind string)) Option {
	return func(c *Client) { c.renderer = newRemoteRenderer(fn) }
}

// New creates a client in the idle state.
func New(userID string, signal Signaler, devices MediaDevices, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		userID:          userID,
		signal:          signal,
		devices:         devices,
		log:             log,
		joinTimeout:     defaultJoinTimeout,
		teardownTimeout: defaultTeardownTimeout,
		state:           StateIdle,
		pending:         make(map[string]*pendingRequest),
		renderer:        newRemoteRenderer(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session the client is awaiting or connected to.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Roster returns the last participant list received from the server.
func (c *Client) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.roster))
	copy(out, c.roster)
	return out
}

// Await moves the client from idle to awaiting the given session. The client
// will auto-join when the server announces the session start.
func (c *Client) Await(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrRequestPending
	}
	c.sessionID = sessionID
	c.setStateLocked(StateAwaitingSession)
	return nil
}

// Join sends the join request and blocks until the server confirms, rejects
// or the request times out. A second Join while one is in flight fails
// immediately; the in-flight guard is the state itself.
func (c *Client) Join(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateJoinRequested:
		c.mu.Unlock()
		return ErrJoinInFlight
	case StateAwaitingSession:
	default:
		c.mu.Unlock()
		return ErrNotAwaiting
	}

	requestID := uuid.New().String()
	pending := &pendingRequest{
		msgType: types.MessageTypeJoinSession,
		reply:   make(chan *types.Envelope, 1),
	}
	c.pending[requestID] = pending
	c.joinSettled = make(chan struct{})
	sessionID := c.sessionID
	c.setStateLocked(StateJoinRequested)
	c.mu.Unlock()

	env := types.NewEnvelope(types.MessageTypeJoinSession, requestID,
		types.JoinRequest{SessionID: sessionID, ParticipantID: c.userID})

	if err := c.signal.Send(env); err != nil {
		c.settleJoin(requestID, StateAwaitingSession)
		return err
	}

	timer := time.NewTimer(c.joinTimeout)
	defer timer.Stop()

	select {
	case reply := <-pending.reply:
		return c.completeJoin(ctx, requestID, reply)
	case <-timer.C:
		c.settleJoin(requestID, StateAwaitingSession)
		return ErrJoinTimeout
	case <-ctx.Done():
		c.settleJoin(requestID, StateAwaitingSession)
		return ctx.Err()
	}
}

// completeJoin handles the correlated server reply to a join request.
func (c *Client) completeJoin(ctx context.Context, requestID string, reply *types.Envelope) error {
	if reply.Type == types.MessageTypeError {
		var ev types.ErrorEvent
		_ = json.Unmarshal(reply.Payload, &ev)
		if ev.Code == types.ErrCodeSessionEnded {
			c.settleJoin(requestID, StateIdle)
			return ErrSessionClosed
		}
		c.settleJoin(requestID, StateAwaitingSession)
		return &RecoverableError{Err: errFromEvent(ev)}
	}

	var joined types.SessionJoinedEvent
	if err := json.Unmarshal(reply.Payload, &joined); err != nil {
		c.settleJoin(requestID, StateAwaitingSession)
		return &RecoverableError{Err: err}
	}

	c.mu.Lock()
	c.media = newLocalMedia(c.log)
	c.roster = joined.Participants
	media := c.media
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	// Media acquisition failure never undoes the join: the server already
	// counts this participant, so degrade instead of disconnecting.
	if err := media.acquire(ctx, c.devices); err != nil {
		c.log.Warn("local media unavailable", "session_id", joined.SessionID, "error", err)
		c.reportError(err)
	}

	c.settleJoin(requestID, "")
	c.mu.Lock()
	ended := c.endedPending
	c.mu.Unlock()
	if ended {
		c.teardown(StateIdle)
	}
	return nil
}

// settleJoin clears the pending request and optionally reverts the state.
// An empty revert leaves the state as completeJoin set it.
func (c *Client) settleJoin(requestID string, revert State) {
	c.mu.Lock()
	delete(c.pending, requestID)
	if revert != "" && c.state == StateJoinRequested {
		c.setStateLocked(revert)
	}
	if c.joinSettled != nil {
		close(c.joinSettled)
		c.joinSettled = nil
	}
	c.mu.Unlock()
}

// Leave departs the session, releasing media before reporting to the server.
// Leaving when not connected is a no-op.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	c.setStateLocked(StateLeaving)
	c.mu.Unlock()

	env := types.NewEnvelope(types.MessageTypeLeaveSession, uuid.New().String(),
		types.LeaveRequest{SessionID: sessionID, ParticipantID: c.userID})
	if err := c.signal.Send(env); err != nil {
		c.log.Warn("leave notification failed", "session_id", sessionID, "error", err)
	}

	c.teardown(StateIdle)
	return nil
}

// HandleEvent feeds a server envelope into the state machine. The transport
// read pump calls this for every inbound frame.
func (c *Client) HandleEvent(env *types.Envelope) {
	if env.RequestID != "" {
		if c.resolvePending(env) {
			return
		}
	}

	switch env.Type {
	case types.MessageTypeSessionStart:
		c.onSessionStart(env)
	case types.MessageTypeParticipantsUpdated:
		c.onParticipantsUpdated(env)
	case types.MessageTypeSessionEnded:
		c.onSessionEnded(env)
	case types.MessageTypeSessionScheduled:
		// Informational; the application decides whether to Await.
	default:
		c.log.Info("ignoring unexpected event", "type", env.Type)
	}
}

// OnRemotePublished renders a remote participant's track, once per
// participant and kind. Duplicate notifications are dropped.
func (c *Client) OnRemotePublished(participantID, kind string) {
	c.renderer.onPublished(participantID, kind)
}

// resolvePending routes a correlated reply to its waiter. Returns false when
// no request matches, such as a reply arriving after its timeout.
func (c *Client) resolvePending(env *types.Envelope) bool {
	c.mu.Lock()
	pending, ok := c.pending[env.RequestID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case pending.reply <- env:
	default:
	}
	return true
}

// onSessionStart auto-joins when the announced session is the awaited one.
func (c *Client) onSessionStart(env *types.Envelope) {
	var ev types.SessionStartEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		c.log.Warn("undecodable session-start event", "error", err)
		return
	}

	c.mu.Lock()
	shouldJoin := c.state == StateAwaitingSession && c.sessionID == ev.SessionID
	c.mu.Unlock()
	if !shouldJoin {
		return
	}

	go func() {
		if err := c.Join(context.Background()); err != nil {
			c.log.Warn("auto-join failed", "session_id", ev.SessionID, "error", err)
			c.reportError(err)
		}
	}()
}

func (c *Client) onParticipantsUpdated(env *types.Envelope) {
	var ev types.ParticipantsUpdatedEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		c.log.Warn("undecodable participants-updated event", "error", err)
		return
	}

	c.mu.Lock()
	if c.sessionID == ev.SessionID {
		c.roster = ev.Participants
	}
	c.mu.Unlock()
}

// onSessionEnded tears the session down. When a join is still in flight the
// teardown waits for it to settle so a late join confirmation cannot revive
// released media.
func (c *Client) onSessionEnded(env *types.Envelope) {
	var ev types.SessionEndedEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		c.log.Warn("undecodable session-ended event", "error", err)
		return
	}

	c.mu.Lock()
	if c.sessionID != ev.SessionID {
		c.mu.Unlock()
		return
	}
	switch c.state {
	case StateIdle, StateLeaving:
		c.mu.Unlock()
		return
	case StateJoinRequested:
		c.endedPending = true
		settled := c.joinSettled
		c.mu.Unlock()
		// The wait parks on its own goroutine: this method runs on the
		// transport read pump, which must keep draining events while the
		// join settles.
		go c.teardownAfterJoinSettles(settled)
		return
	case StateAwaitingSession:
		c.setStateLocked(StateIdle)
		c.sessionID = ""
		c.mu.Unlock()
		return
	default:
		c.mu.Unlock()
	}

	c.teardown(StateIdle)
}

// teardownAfterJoinSettles completes an ended event that arrived while a
// join was in flight: once the join settles, a join that lost is parked in
// idle and a join that won gets the full teardown.
func (c *Client) teardownAfterJoinSettles(settled chan struct{}) {
	if settled != nil {
		<-settled
	}
	c.mu.Lock()
	c.endedPending = false
	if c.state != StateConnected {
		c.setStateLocked(StateIdle)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.teardown(StateIdle)
}

// teardown releases media and resets session state, landing in target.
func (c *Client) teardown(target State) {
	c.mu.Lock()
	media := c.media
	c.media = nil
	c.roster = nil
	c.sessionID = ""
	c.mu.Unlock()

	if media != nil {
		media.teardown(c.teardownTimeout)
	}

	c.mu.Lock()
	c.setStateLocked(target)
	c.mu.Unlock()
}

// setStateLocked transitions state; caller holds the mutex.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onStateChange != nil {
		go c.onStateChange(s)
	}
}

func (c *Client) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func errFromEvent(ev types.ErrorEvent) error {
	return &serverError{code: ev.Code, message: ev.Message}
}

// serverError is a rejection received over the wire.
type serverError struct {
	code    string
	message string
}

func (e *serverError) Error() string { return e.code + ": " + e.message }

// Code returns the wire error code of a server rejection.
func (e *serverError) Code() string { return e.code }
