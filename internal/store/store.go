// Package store persists tier summaries, entity outcomes, and fleet run
// summaries in SQLite. A single connection guarded by a mutex keeps
// writes serialized; WAL mode keeps concurrent readers cheap.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"secbrief/internal/logging"
	"secbrief/internal/types"
)

// Store is the SQLite-backed outcome store.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// New opens (creating if needed) the database at path and brings the
// schema up to date. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "New")
	defer timer.Stop()

	logging.Store("Opening outcome store at %s", path)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Schema ready at version %d", CurrentSchemaVersion)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveOutcome persists one entity outcome with its tier results in a
// single transaction and returns the outcome row id.
func (s *Store) SaveOutcome(ctx context.Context, outcome *types.EntityOutcome) (int64, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SaveOutcome")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entity_outcomes (run_id, entity_id, entity_name, storage_status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		outcome.Task.RunID,
		outcome.Task.EntityID,
		outcome.Task.Name,
		string(outcome.Storage),
		outcome.Err,
		outcome.Duration.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity outcome: %w", err)
	}
	outcomeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read outcome id: %w", err)
	}

	for _, tr := range outcome.Tiers {
		claims, err := json.Marshal(tr.Verification.FailedClaims)
		if err != nil {
			return 0, fmt.Errorf("failed to encode failed claims: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tier_summaries (outcome_id, tier, text, word_count, retries, verification_status, pass_rate, failed_claims)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			outcomeID,
			string(tr.Tier),
			tr.Text,
			tr.WordCount,
			tr.Retries,
			string(tr.Verification.Status),
			tr.Verification.PassRate,
			string(claims),
		); err != nil {
			return 0, fmt.Errorf("failed to insert tier %s: %w", tr.Tier, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit outcome: %w", err)
	}
	logging.StoreDebug("Saved outcome %d for entity %s (%d tiers)", outcomeID, outcome.Task.EntityID, len(outcome.Tiers))
	return outcomeID, nil
}

// SaveSummary persists the fleet run summary.
func (s *Store) SaveSummary(ctx context.Context, summary *types.FleetSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := json.Marshal(summary.TierStats)
	if err != nil {
		return fmt.Errorf("failed to encode tier stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fleet_runs (run_id, status, total, succeeded, failed, tier_stats, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			tier_stats = excluded.tier_stats,
			elapsed_ms = excluded.elapsed_ms`,
		summary.RunID,
		string(summary.Status),
		summary.Total,
		summary.Succeeded,
		summary.Failed,
		string(stats),
		summary.Elapsed.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save fleet summary: %w", err)
	}
	logging.Store("Saved summary for run %s: %s", summary.RunID, summary.Status)
	return nil
}

// GetSummary loads the fleet summary for a run. Returns sql.ErrNoRows
// wrapped when the run is unknown.
func (s *Store) GetSummary(ctx context.Context, runID string) (*types.FleetSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT status, total, succeeded, failed, tier_stats, elapsed_ms
		FROM fleet_runs WHERE run_id = ?`, runID)

	var (
		status    string
		statsJSON string
		elapsedMS int64
	)
	summary := &types.FleetSummary{RunID: runID}
	if err := row.Scan(&status, &summary.Total, &summary.Succeeded, &summary.Failed, &statsJSON, &elapsedMS); err != nil {
		return nil, fmt.Errorf("failed to load summary for run %s: %w", runID, err)
	}
	summary.Status = types.RunStatus(status)
	summary.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if err := json.Unmarshal([]byte(statsJSON), &summary.TierStats); err != nil {
		return nil, fmt.Errorf("failed to decode tier stats: %w", err)
	}
	return summary, nil
}

// GetOutcome loads the stored outcome for an entity in a run, including
// tier summaries in generation order.
func (s *Store) GetOutcome(ctx context.Context, runID, entityID string) (*types.EntityOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_name, storage_status, error, duration_ms
		FROM entity_outcomes WHERE run_id = ? AND entity_id = ?
		ORDER BY id DESC LIMIT 1`, runID, entityID)

	var (
		outcomeID  int64
		name       string
		storage    string
		errMsg     string
		durationMS int64
	)
	if err := row.Scan(&outcomeID, &name, &storage, &errMsg, &durationMS); err != nil {
		return nil, fmt.Errorf("failed to load outcome for %s in run %s: %w", entityID, runID, err)
	}
	outcome := &types.EntityOutcome{
		Task:     types.EntityTask{EntityID: entityID, Name: name, RunID: runID},
		Storage:  types.StorageStatus(storage),
		Err:      errMsg,
		Duration: time.Duration(durationMS) * time.Millisecond,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tier, text, word_count, retries, verification_status, pass_rate, failed_claims
		FROM tier_summaries WHERE outcome_id = ? ORDER BY id`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tier summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tier       string
			vStatus    string
			claimsJSON string
			tr         types.TierResult
		)
		if err := rows.Scan(&tier, &tr.Text, &tr.WordCount, &tr.Retries, &vStatus, &tr.Verification.PassRate, &claimsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan tier summary: %w", err)
		}
		tr.Tier = types.Tier(tier)
		tr.Verification.Status = types.VerificationStatus(vStatus)
		if err := json.Unmarshal([]byte(claimsJSON), &tr.Verification.FailedClaims); err != nil {
			return nil, fmt.Errorf("failed to decode failed claims: %w", err)
		}
		outcome.Tiers = append(outcome.Tiers, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return outcome, nil
}

// GetEntityError returns the stored error text for an entity in a run,
// empty when the entity succeeded.
func (s *Store) GetEntityError(ctx context.Context, runID, entityID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errMsg string
	err := s.db.QueryRowContext(ctx, `
		SELECT error FROM entity_outcomes
		WHERE run_id = ? AND entity_id = ?
		ORDER BY id DESC LIMIT 1`, runID, entityID).Scan(&errMsg)
	if err != nil {
		return "", fmt.Errorf("failed to load error for %s in run %s: %w", entityID, runID, err)
	}
	return errMsg, nil
}
