package store

import (
	"database/sql"
	"fmt"

	"secbrief/internal/logging"
)

// Schema versions:
// v1: fleet_runs, entity_outcomes, tier_summaries
// v2: failed_claims column on tier_summaries
const CurrentSchemaVersion = 2

var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS fleet_runs (
		run_id     TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		total      INTEGER NOT NULL,
		succeeded  INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		tier_stats TEXT NOT NULL DEFAULT '{}',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_outcomes (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL,
		entity_id      TEXT NOT NULL,
		entity_name    TEXT NOT NULL DEFAULT '',
		storage_status TEXT NOT NULL,
		error          TEXT NOT NULL DEFAULT '',
		duration_ms    INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tier_summaries (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		outcome_id          INTEGER NOT NULL REFERENCES entity_outcomes(id),
		tier                TEXT NOT NULL,
		text                TEXT NOT NULL,
		word_count          INTEGER NOT NULL,
		retries             INTEGER NOT NULL DEFAULT 0,
		verification_status TEXT NOT NULL,
		pass_rate           REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_outcomes_run ON entity_outcomes(run_id, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tier_summaries_outcome ON tier_summaries(outcome_id)`,
}

// columnMigration adds a column to an existing table when missing.
type columnMigration struct {
	Table  string
	Column string
	Def    string
}

var columnMigrations = []columnMigration{
	// v2: persisted corrective feedback for post-run inspection.
	{"tier_summaries", "failed_claims", "TEXT NOT NULL DEFAULT '[]'"},
}

// migrate creates the base schema and applies column migrations for
// databases created by older versions.
func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	for _, stmt := range baseSchema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply base schema: %w", err)
		}
	}

	applied := 0
	for _, m := range columnMigrations {
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}
	if applied > 0 {
		logging.Store("Applied %d column migrations", applied)
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
