package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// mockSessionStore is an in-memory SessionStore with real compare-and-set
// transition semantics.
type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session

	createErr   error
	getErr      error
	activateErr error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*types.Session)}
}

func (m *mockSessionStore) CreateSession(ctx context.Context, sess *types.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *mockSessionStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (m *mockSessionStore) ListSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.Session
	for _, sess := range m.sessions {
		if sess.Status == status {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockSessionStore) ActivateSession(ctx context.Context, sessionID string) (bool, error) {
	if m.activateErr != nil {
		return false, m.activateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.Status != types.StatusScheduled {
		return false, nil
	}
	sess.Status = types.StatusActive
	return true, nil
}

func (m *mockSessionStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.Status != types.StatusActive {
		return false, nil
	}
	sess.Status = types.StatusEnded
	sess.EndedAt = &endedAt
	return true, nil
}

func (m *mockSessionStore) put(sess *types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sess
	m.sessions[sess.ID] = &cp
}

// mockQueue records enqueued activation tasks.
type mockQueue struct {
	mu         sync.Mutex
	enqueued   map[string]time.Time
	enqueueErr error
}

func newMockQueue() *mockQueue {
	return &mockQueue{enqueued: make(map[string]time.Time)}
}

func (m *mockQueue) Enqueue(ctx context.Context, sessionID string, fireAt time.Time) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued[sessionID] = fireAt
	return nil
}

// mockBroadcaster captures class and room broadcasts. classFailFirst fails
// that many ToClass calls before succeeding; classErr fails all of them.
type mockBroadcaster struct {
	mu             sync.Mutex
	toClass        []*types.Envelope
	toRoom         []*types.Envelope
	classErr       error
	classFailFirst int
}

func (m *mockBroadcaster) ToClass(classID string, env *types.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.classFailFirst > 0 {
		m.classFailFirst--
		return errors.New("transient broadcast failure")
	}
	if m.classErr != nil {
		return m.classErr
	}
	m.toClass = append(m.toClass, env)
	return nil
}

func (m *mockBroadcaster) ToRoom(sessionID string, env *types.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toRoom = append(m.toRoom, env)
	return nil
}

func (m *mockBroadcaster) classEvents() []*types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.Envelope(nil), m.toClass...)
}

// mockNotifier records out-of-band notifications.
type mockNotifier struct {
	mu    sync.Mutex
	notes []string
}

func (m *mockNotifier) Notify(ctx context.Context, userID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, userID+": "+message)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

func (m *mockNotifier) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes...)
}

// mockDirectory resolves class enrollment.
type mockDirectory struct {
	students map[string][]string
	err      error
}

func (m *mockDirectory) StudentsOf(ctx context.Context, classID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.students[classID], nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
