package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// stubStore is an in-memory SessionStore with compare-and-set transitions.
type stubStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newStubStore(sessions ...*types.Session) *stubStore {
	s := &stubStore{sessions: make(map[string]*types.Session)}
	for _, sess := range sessions {
		cp := *sess
		s.sessions[sess.ID] = &cp
	}
	return s
}

func (s *stubStore) CreateSession(ctx context.Context, sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *stubStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *stubStore) ListSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Session
	for _, sess := range s.sessions {
		if sess.Status == status {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubStore) ActivateSession(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Status != types.StatusScheduled {
		return false, nil
	}
	sess.Status = types.StatusActive
	return true, nil
}

func (s *stubStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Status != types.StatusActive {
		return false, nil
	}
	sess.Status = types.StatusEnded
	sess.EndedAt = &endedAt
	return true, nil
}

// stubTracker records tracking calls without persistence.
type stubTracker struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	closed []string
}

func (s *stubTracker) RecordJoin(ctx context.Context, sessionID, userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, sessionID+"/"+userID)
}

func (s *stubTracker) RecordLeave(ctx context.Context, sessionID, userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, sessionID+"/"+userID)
}

func (s *stubTracker) CloseAll(ctx context.Context, sessionID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, sessionID)
}

func (s *stubTracker) Aggregate(ctx context.Context, sessionID, userID string, asOf time.Time) (time.Duration, error) {
	return 0, nil
}

func (s *stubTracker) joinCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.joins)
}

func (s *stubTracker) leaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.leaves)
}

// stubIssuer issues predictable tokens; issueErr simulates provider outage.
// When the gate channels are set, IssueToken signals issueStarted and then
// blocks until issueRelease closes, letting tests hold a join mid-issuance.
type stubIssuer struct {
	mu           sync.Mutex
	issueErr     error
	issued       int
	released     []string
	issueStarted chan struct{}
	issueRelease chan struct{}
}

func (s *stubIssuer) IssueToken(ctx context.Context, roomID, identity string) (string, error) {
	if s.issueStarted != nil {
		close(s.issueStarted)
	}
	if s.issueRelease != nil {
		<-s.issueRelease
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issueErr != nil {
		return "", s.issueErr
	}
	s.issued++
	return "token-" + roomID + "-" + identity, nil
}

func (s *stubIssuer) ReleaseRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, roomID)
	return nil
}

func (s *stubIssuer) releasedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.released...)
}

// stubBroadcaster records broadcasts per channel.
type stubBroadcaster struct {
	mu      sync.Mutex
	toClass []*types.Envelope
	toRoom  []*types.Envelope
}

func (s *stubBroadcaster) ToClass(classID string, env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toClass = append(s.toClass, env)
	return nil
}

func (s *stubBroadcaster) ToRoom(sessionID string, env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toRoom = append(s.toRoom, env)
	return nil
}

func (s *stubBroadcaster) roomEvents() []*types.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Envelope(nil), s.toRoom...)
}

func (s *stubBroadcaster) roomEventsOfType(msgType string) []*types.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Envelope
	for _, env := range s.toRoom {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

// stubReplier records direct replies per connection.
type stubReplier struct {
	mu      sync.Mutex
	replies map[string][]*types.Envelope
}

func newStubReplier() *stubReplier {
	return &stubReplier{replies: make(map[string][]*types.Envelope)}
}

func (s *stubReplier) Reply(connectionID string, env *types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[connectionID] = append(s.replies[connectionID], env)
	return nil
}

func (s *stubReplier) repliesTo(connectionID string) []*types.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Envelope(nil), s.replies[connectionID]...)
}

// stubSubscriber records room subscriptions.
type stubSubscriber struct {
	mu   sync.Mutex
	subs []string
}

func (s *stubSubscriber) SubscribeRoom(connectionID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, connectionID+"/"+sessionID)
	return nil
}

func noopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
