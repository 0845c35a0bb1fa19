package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// migrations are embedded rather than loaded from disk so the binary is
// self-contained; ordering is by version string.
var migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				id           TEXT PRIMARY KEY,
				title        TEXT NOT NULL,
				class_id     TEXT NOT NULL,
				teacher_id   TEXT NOT NULL,
				student_ids  TEXT NOT NULL,
				scheduled_at DATETIME NOT NULL,
				ended_at     DATETIME,
				status       TEXT NOT NULL DEFAULT 'scheduled'
					CHECK (status IN ('scheduled', 'active', 'ended')),
				room_id      TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
			CREATE INDEX IF NOT EXISTS idx_sessions_class ON sessions(class_id);
		`,
	},
	{
		Version:     "002",
		Description: "participant_intervals",
		SQL: `
			CREATE TABLE IF NOT EXISTS participant_intervals (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT NOT NULL REFERENCES sessions(id),
				user_id    TEXT NOT NULL,
				joined_at  DATETIME NOT NULL,
				left_at    DATETIME
			);

			CREATE INDEX IF NOT EXISTS idx_intervals_session_user
				ON participant_intervals(session_id, user_id);
			CREATE INDEX IF NOT EXISTS idx_intervals_open
				ON participant_intervals(session_id) WHERE left_at IS NULL;
		`,
	},
	{
		Version:     "003",
		Description: "activation_tasks",
		SQL: `
			CREATE TABLE IF NOT EXISTS activation_tasks (
				session_id TEXT PRIMARY KEY REFERENCES sessions(id),
				fire_at    DATETIME NOT NULL,
				acked      INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_due
				ON activation_tasks(fire_at) WHERE acked = 0;
		`,
	},
}

// MigrationManager applies pending migrations and tracks applied versions.
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a migration manager over an open database.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// ApplyMigrations applies all pending migrations in version order, each in
// its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := make([]Migration, 0, len(migrations))
	for _, mig := range migrations {
		if !applied[mig.Version] {
			pending = append(pending, mig)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, mig := range pending {
		if err := m.applyMigration(mig); err != nil {
			return fmt.Errorf("failed to apply migration %s (%s): %w", mig.Version, mig.Description, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions[version] = true
	}
	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", mig.Version); err != nil {
		return err
	}
	return tx.Commit()
}
