package roster

import (
	"sort"
	"sync"

	"liveclass/pkg/interfaces"
)

// Registry is the in-memory ParticipantRegistry: sessionID -> participantID
// -> connectionID. A re-entrant upsert for the same participant overwrites
// the connection identity without creating a second roster slot, which is
// what tolerates client reconnects.
//
// Valid for a single signaling instance only; a horizontally scaled
// deployment substitutes a shared-store implementation of the same
// interface.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]string
}

var _ interfaces.ParticipantRegistry = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]string),
	}
}

// Upsert binds participantID to connectionID, replacing any prior binding.
func (r *Registry) Upsert(sessionID, participantID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.sessions[sessionID]
	if !ok {
		roster = make(map[string]string)
		r.sessions[sessionID] = roster
	}
	roster[participantID] = connectionID
}

// Remove drops the participant from the roster. Idempotent.
func (r *Registry) Remove(sessionID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roster, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(roster, participantID)
	if len(roster) == 0 {
		delete(r.sessions, sessionID)
	}
}

// RemoveAll clears the entire roster for a session.
func (r *Registry) RemoveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// List returns the connected participant IDs for a session, sorted for
// stable broadcast payloads.
func (r *Registry) List(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(roster))
	for id := range roster {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connection returns the connection identity for a participant.
func (r *Registry) Connection(sessionID, participantID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster, ok := r.sessions[sessionID]
	if !ok {
		return "", false
	}
	connID, ok := roster[participantID]
	return connID, ok
}
