package interfaces

// ParticipantRegistry is the roster index: session -> participant ->
// connection identity. Implementations must tolerate concurrent calls.
//
// The in-memory implementation is only valid for a single-instance
// deployment; horizontally scaled signaling requires a shared-store
// implementation behind this same interface.
type ParticipantRegistry interface {
	// Upsert binds participantID to connectionID, replacing any prior
	// connection identity without creating a second roster slot.
	Upsert(sessionID, participantID, connectionID string)

	// Remove drops the participant from the roster. Idempotent.
	Remove(sessionID, participantID string)

	// RemoveAll clears the entire roster for a session.
	RemoveAll(sessionID string)

	// List returns the connected participant IDs for a session, sorted.
	List(sessionID string) []string

	// Connection returns the connection identity for a participant.
	Connection(sessionID, participantID string) (string, bool)
}
