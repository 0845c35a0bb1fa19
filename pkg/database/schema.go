package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator verifies the database structure matches expectations,
// used by deployment checks and tests.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator.
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist.
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"sessions":              "session records",
		"participant_intervals": "join-leave intervals",
		"activation_tasks":      "delayed activation queue",
		"schema_migrations":     "migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}
	return nil
}

// ValidateIndexes verifies the performance indexes exist.
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_sessions_status":        "session status lookups",
		"idx_sessions_class":         "class channel queries",
		"idx_intervals_session_user": "attendance aggregation",
		"idx_intervals_open":         "open interval lookups",
		"idx_tasks_due":              "due task polling",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}
	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
