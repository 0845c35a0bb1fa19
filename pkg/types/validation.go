package types

import "regexp"

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks that an identifier (user, class, session) is 1-64
// characters of alphanumerics, underscore or hyphen.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsInboundMessageType reports whether msgType is one of the accepted
// client-to-server message types.
func IsInboundMessageType(msgType string) bool {
	switch msgType {
	case MessageTypeScheduleSession,
		MessageTypeJoinSession,
		MessageTypeLeaveSession,
		MessageTypeEndSession,
		MessageTypeSubscribeRoom:
		return true
	default:
		return false
	}
}
