package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsValidID(t *testing.T) {
	valid := []string{"alice", "class-101", "user_42", "A", strings.Repeat("x", 64)}
	for _, id := range valid {
		require.True(t, IsValidID(id), "expected %q to be valid", id)
	}

	invalid := []string{"", "has space", "semi;colon", "sql'inject", strings.Repeat("x", 65), "emoji😀"}
	for _, id := range invalid {
		require.False(t, IsValidID(id), "expected %q to be invalid", id)
	}
}

func TestIsInboundMessageType(t *testing.T) {
	for _, mt := range []string{
		MessageTypeScheduleSession,
		MessageTypeJoinSession,
		MessageTypeLeaveSession,
		MessageTypeEndSession,
		MessageTypeSubscribeRoom,
	} {
		require.True(t, IsInboundMessageType(mt))
	}

	// Outbound and unknown types never dispatch.
	for _, mt := range []string{MessageTypeSessionStart, MessageTypeError, "bogus", ""} {
		require.False(t, IsInboundMessageType(mt))
	}
}

func TestSessionIsParticipant(t *testing.T) {
	sess := &Session{
		TeacherID:  "teacher1",
		StudentIDs: []string{"alice", "bob"},
	}

	require.True(t, sess.IsParticipant("teacher1"))
	require.True(t, sess.IsParticipant("alice"))
	require.True(t, sess.IsParticipant("bob"))
	require.False(t, sess.IsParticipant("mallory"))
	require.False(t, sess.IsParticipant(""))
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(MessageTypeSessionEnded, "req-1", &SessionEndedEvent{SessionID: "s1"})

	require.Equal(t, MessageTypeSessionEnded, env.Type)
	require.Equal(t, "req-1", env.RequestID)
	require.JSONEq(t, `{"session_id":"s1"}`, string(env.Payload))
}
