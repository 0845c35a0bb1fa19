package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	dbconfig "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
	"liveclass/pkg/types"
)

// Manager is the SQLite persistence layer for sessions, participant
// intervals and the delayed activation-task queue. All writes go through a
// single writer goroutine; reads run concurrently against the WAL.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	log          *slog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies optimizations and starts the
// writer goroutine. Migrations are the caller's responsibility.
func NewManager(config *dbconfig.Config, log *slog.Logger) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		log:          log,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// A failed write is retried once after a short delay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				m.log.Warn("database write failed, retrying", "error", err)
				time.Sleep(time.Second)
				err = op.operation(m.db)
				if err != nil {
					m.log.Error("database write failed after retry", "error", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			m.log.Info("database write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

// CreateSession persists a new session.
func (m *Manager) CreateSession(ctx context.Context, session *types.Session) error {
	return m.executeWrite(func(db *sql.DB) error {
		studentIDsJSON, err := json.Marshal(session.StudentIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal student IDs: %w", err)
		}

		query := `
			INSERT INTO sessions (id, title, class_id, teacher_id, student_ids, scheduled_at, status, room_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			session.ID,
			session.Title,
			session.ClassID,
			session.TeacherID,
			string(studentIDsJSON),
			session.ScheduledAt,
			string(session.Status),
			session.RoomID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	query := `
		SELECT id, title, class_id, teacher_id, student_ids, scheduled_at, ended_at, status, room_id
		FROM sessions
		WHERE id = ?
	`
	row := m.db.QueryRowContext(ctx, query, sessionID)

	session, err := scanSession(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return session, nil
}

// ListSessionsByStatus returns all sessions with the given status, most
// recently scheduled first.
func (m *Manager) ListSessionsByStatus(ctx context.Context, status types.SessionStatus) ([]*types.Session, error) {
	query := `
		SELECT id, title, class_id, teacher_id, student_ids, scheduled_at, ended_at, status, room_id
		FROM sessions
		WHERE status = ?
		ORDER BY scheduled_at DESC
	`
	rows, err := m.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// ActivateSession performs the scheduled -> active compare-and-set.
// The WHERE clause makes redelivered activations lose cleanly.
func (m *Manager) ActivateSession(ctx context.Context, sessionID string) (bool, error) {
	var won bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE sessions SET status = ? WHERE id = ? AND status = ?`,
			string(types.StatusActive), sessionID, string(types.StatusScheduled),
		)
		if err != nil {
			return fmt.Errorf("failed to activate session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		won = n == 1
		return nil
	})
	return won, err
}

// EndSession performs the active -> ended compare-and-set.
func (m *Manager) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	var won bool
	err := m.executeWrite(func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			string(types.StatusEnded), endedAt, sessionID, string(types.StatusActive),
		)
		if err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		won = n == 1
		return nil
	})
	return won, err
}

// OpenInterval records a join. The gateway guarantees no interval is open
// for the pair; the unique open-interval invariant is not re-checked here.
func (m *Manager) OpenInterval(ctx context.Context, sessionID, userID string, joinedAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO participant_intervals (session_id, user_id, joined_at) VALUES (?, ?, ?)`,
			sessionID, userID, joinedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to open interval: %w", err)
		}
		return nil
	})
}

// CloseInterval closes the open interval for (sessionID, userID). No-op
// when none is open.
func (m *Manager) CloseInterval(ctx context.Context, sessionID, userID string, leftAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE participant_intervals SET left_at = ?
			 WHERE session_id = ? AND user_id = ? AND left_at IS NULL`,
			leftAt, sessionID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to close interval: %w", err)
		}
		return nil
	})
}

// CloseAllIntervals force-closes every open interval for a session.
func (m *Manager) CloseAllIntervals(ctx context.Context, sessionID string, leftAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE participant_intervals SET left_at = ?
			 WHERE session_id = ? AND left_at IS NULL`,
			leftAt, sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to close session intervals: %w", err)
		}
		return nil
	})
}

// ListIntervals returns all intervals for (sessionID, userID) in join order.
func (m *Manager) ListIntervals(ctx context.Context, sessionID, userID string) ([]types.Interval, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT joined_at, left_at FROM participant_intervals
		 WHERE session_id = ? AND user_id = ?
		 ORDER BY joined_at ASC, id ASC`,
		sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query intervals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var intervals []types.Interval
	for rows.Next() {
		var interval types.Interval
		var leftAt sql.NullTime
		if err := rows.Scan(&interval.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("failed to scan interval row: %w", err)
		}
		if leftAt.Valid {
			interval.LeftAt = &leftAt.Time
		}
		intervals = append(intervals, interval)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interval rows: %w", err)
	}
	return intervals, nil
}

// EnqueueTask persists an activation task. Re-scheduling the same session
// replaces the pending task rather than queueing a second one.
func (m *Manager) EnqueueTask(ctx context.Context, sessionID string, fireAt time.Time) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO activation_tasks (session_id, fire_at, acked) VALUES (?, ?, 0)
			 ON CONFLICT(session_id) DO UPDATE SET fire_at = excluded.fire_at, acked = 0`,
			sessionID, fireAt,
		)
		if err != nil {
			return fmt.Errorf("failed to enqueue task: %w", err)
		}
		return nil
	})
}

// DueTasks returns unacked tasks due at or before now. Tasks remain due
// until acked, which is what makes delivery at-least-once.
func (m *Manager) DueTasks(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT session_id FROM activation_tasks WHERE acked = 0 AND fire_at <= ? ORDER BY fire_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessionIDs []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		sessionIDs = append(sessionIDs, sessionID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return sessionIDs, nil
}

// AckTask marks the task for sessionID as delivered.
func (m *Manager) AckTask(ctx context.Context, sessionID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`UPDATE activation_tasks SET acked = 1 WHERE session_id = ?`,
			sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to ack task: %w", err)
		}
		return nil
	})
}

// HealthCheck validates database connectivity.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := m.db.QueryContext(ctx, "SELECT COUNT(*) FROM sessions LIMIT 1"); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying connection for migrations and schema checks.
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer goroutine and the connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func scanSession(scan func(dest ...interface{}) error) (*types.Session, error) {
	var session types.Session
	var studentIDsJSON, status string
	var endedAt sql.NullTime

	err := scan(
		&session.ID,
		&session.Title,
		&session.ClassID,
		&session.TeacherID,
		&studentIDsJSON,
		&session.ScheduledAt,
		&endedAt,
		&status,
		&session.RoomID,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(studentIDsJSON), &session.StudentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal student IDs: %w", err)
	}
	session.Status = types.SessionStatus(status)
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	return &session, nil
}
