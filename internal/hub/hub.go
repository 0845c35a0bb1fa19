package hub

import (
	"log/slog"
	"sync"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Sink is the write side of a registered connection. Implementations buffer
// writes internally so broadcast fan-out never blocks on a slow client.
type Sink interface {
	ID() string
	WriteEnvelope(env *types.Envelope) error
}

// Hub fans signaling events out to subscribed connections. Class channels
// carry scheduling and start announcements; session rooms carry roster and
// termination events. Direct replies go to a single connection.
type Hub struct {
	log *slog.Logger

	mu        sync.RWMutex
	closed    bool
	conns     map[string]Sink            // connectionID -> sink
	classSubs map[string]map[string]bool // classID -> connectionIDs
	roomSubs  map[string]map[string]bool // sessionID -> connectionIDs
}

var (
	_ interfaces.Broadcaster = (*Hub)(nil)
	_ interfaces.Replier     = (*Hub)(nil)
)

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:       log,
		conns:     make(map[string]Sink),
		classSubs: make(map[string]map[string]bool),
		roomSubs:  make(map[string]map[string]bool),
	}
}

// Register adds a connection and subscribes it to its class channel.
func (h *Hub) Register(sink Sink, classID string) error {
	if sink == nil {
		return ErrNilSink
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	connID := sink.ID()
	h.conns[connID] = sink
	if classID != "" {
		if h.classSubs[classID] == nil {
			h.classSubs[classID] = make(map[string]bool)
		}
		h.classSubs[classID][connID] = true
	}
	return nil
}

// SubscribeRoom subscribes a connection to a session room so it receives
// roster updates and the ended event.
func (h *Hub) SubscribeRoom(connectionID, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	if _, ok := h.conns[connectionID]; !ok {
		return ErrUnknownConnection
	}
	if h.roomSubs[sessionID] == nil {
		h.roomSubs[sessionID] = make(map[string]bool)
	}
	h.roomSubs[sessionID][connectionID] = true
	return nil
}

// Unregister removes a connection from the hub and all subscriptions.
// Idempotent.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, connectionID)
	for classID, subs := range h.classSubs {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(h.classSubs, classID)
		}
	}
	for sessionID, subs := range h.roomSubs {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(h.roomSubs, sessionID)
		}
	}
}

// ToClass broadcasts an envelope to every connection on a class channel.
// Per-recipient write failures are logged and do not stop delivery.
func (h *Hub) ToClass(classID string, env *types.Envelope) error {
	return h.fanOut(h.snapshot(h.classSubs, classID), "class", classID, env)
}

// ToRoom broadcasts an envelope to every connection in a session room.
func (h *Hub) ToRoom(sessionID string, env *types.Envelope) error {
	return h.fanOut(h.snapshot(h.roomSubs, sessionID), "room", sessionID, env)
}

// Reply delivers an envelope to a single connection.
func (h *Hub) Reply(connectionID string, env *types.Envelope) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	sink, ok := h.conns[connectionID]
	h.mu.RUnlock()

	if !ok {
		return ErrUnknownConnection
	}
	return sink.WriteEnvelope(env)
}

// Close marks the hub closed; subsequent broadcasts fail so callers can
// apply their own retry policy.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.conns = make(map[string]Sink)
	h.classSubs = make(map[string]map[string]bool)
	h.roomSubs = make(map[string]map[string]bool)
}

// snapshot copies the sinks subscribed to a channel so fan-out runs without
// holding the lock. Returns nil when the hub is closed.
func (h *Hub) snapshot(subs map[string]map[string]bool, key string) []Sink {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	ids, ok := subs[key]
	if !ok {
		return []Sink{}
	}
	sinks := make([]Sink, 0, len(ids))
	for connID := range ids {
		if sink, ok := h.conns[connID]; ok {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func (h *Hub) fanOut(sinks []Sink, channelKind, channelID string, env *types.Envelope) error {
	if sinks == nil {
		return ErrHubClosed
	}
	for _, sink := range sinks {
		if err := sink.WriteEnvelope(env); err != nil {
			h.log.Warn("broadcast delivery failed",
				"channel", channelKind, "channel_id", channelID,
				"connection_id", sink.ID(), "type", env.Type, "error", err)
		}
	}
	return nil
}
