package interfaces

import "liveclass/pkg/types"

// Broadcaster fans signaling events out to subscribed connections.
// Class channels carry scheduling and start events; session rooms carry
// roster and termination events. Per-recipient write failures are logged by
// implementations; an error return means the broadcast channel itself is
// unavailable.
type Broadcaster interface {
	ToClass(classID string, env *types.Envelope) error
	ToRoom(sessionID string, env *types.Envelope) error
}

// Replier delivers a direct reply to a single caller connection.
type Replier interface {
	Reply(connectionID string, env *types.Envelope) error
}
