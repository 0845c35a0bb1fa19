package types

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a session. Transitions are
// monotonic: scheduled -> active -> ended, with ended terminal.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusEnded     SessionStatus = "ended"
)

// Inbound message types accepted on the signaling channel.
const (
	MessageTypeScheduleSession = "schedule-session"
	MessageTypeJoinSession     = "join-session"
	MessageTypeLeaveSession    = "leave-session"
	MessageTypeEndSession      = "end-session"
	MessageTypeSubscribeRoom   = "subscribe-room"
)

// Outbound message types emitted on the signaling channel.
const (
	MessageTypeSessionScheduled    = "session-scheduled"
	MessageTypeSessionStart        = "session-start"
	MessageTypeSessionJoined       = "session-joined"
	MessageTypeParticipantsUpdated = "participants-updated"
	MessageTypeSessionEnded        = "session-ended"
	MessageTypeError               = "error"
)

// Stable reason codes carried on error events.
const (
	ErrCodeValidation        = "validation_failed"
	ErrCodeNotFound          = "not_found"
	ErrCodeNotAuthorized     = "not_authorized"
	ErrCodeSessionEnded      = "session_ended"
	ErrCodeSessionNotStarted = "session_not_started"
	ErrCodeMediaUnavailable  = "media_unavailable"
	ErrCodeRateLimited       = "rate_limited"
	ErrCodeInternal          = "internal"
)

// Session represents a scheduled or live class meeting.
// Immutable after creation except for status and ended_at; status is mutated
// only through compare-and-set store operations.
type Session struct {
	ID          string        `json:"id" db:"id"`
	Title       string        `json:"title" db:"title"`
	ClassID     string        `json:"class_id" db:"class_id"`
	TeacherID   string        `json:"teacher_id" db:"teacher_id"`
	StudentIDs  []string      `json:"student_ids" db:"student_ids"`
	ScheduledAt time.Time     `json:"scheduled_at" db:"scheduled_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	Status      SessionStatus `json:"status" db:"status"`
	RoomID      string        `json:"room_id" db:"room_id"`
}

// IsParticipant reports whether userID is the teacher or an enrolled student.
func (s *Session) IsParticipant(userID string) bool {
	if userID == s.TeacherID {
		return true
	}
	for _, id := range s.StudentIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Interval is a single join-leave span for a participant.
// LeftAt is nil while the participant is still connected.
type Interval struct {
	JoinedAt time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// Envelope is the wire frame for every signaling message in both directions.
// RequestID correlates a client request with its direct reply; broadcasts
// carry no request ID.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into a typed envelope.
func NewEnvelope(msgType, requestID string, payload interface{}) *Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	return &Envelope{Type: msgType, RequestID: requestID, Payload: data}
}

// ScheduleRequest is the payload of a schedule-session message.
// StudentIDs may be empty on the wire when the class roster is resolved
// through the class directory.
type ScheduleRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	ClassID     string   `json:"class_id" validate:"required"`
	TeacherID   string   `json:"teacher_id" validate:"required"`
	StudentIDs  []string `json:"student_ids" validate:"omitempty,dive,required"`
	ScheduledAt string   `json:"scheduled_at" validate:"required"`
}

// JoinRequest is the payload of a join-session message.
type JoinRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

// LeaveRequest is the payload of a leave-session message.
type LeaveRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

// EndRequest is the payload of an end-session message.
type EndRequest struct {
	SessionID string `json:"session_id"`
	CallerID  string `json:"caller_id"`
}

// SubscribeRequest is the payload of a subscribe-room message.
type SubscribeRequest struct {
	SessionID string `json:"session_id"`
}

// SessionScheduledEvent announces an upcoming session on the class channel.
type SessionScheduledEvent struct {
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// SessionStartEvent announces activation on the class channel.
type SessionStartEvent struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// SessionJoinedEvent is the direct reply to a successful join.
type SessionJoinedEvent struct {
	SessionID    string   `json:"session_id"`
	RoomID       string   `json:"room_id"`
	Token        string   `json:"token"`
	Participants []string `json:"participants"`
}

// ParticipantsUpdatedEvent carries the current roster to the room.
type ParticipantsUpdatedEvent struct {
	SessionID    string   `json:"session_id"`
	Participants []string `json:"participants"`
}

// SessionEndedEvent announces termination to the room.
type SessionEndedEvent struct {
	SessionID string `json:"session_id"`
}

// ErrorEvent is the direct reply for any rejected request.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
