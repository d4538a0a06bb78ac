// Package storage persists run history to SQLite for the history command.
// The orchestration core never reads this mid-run; results are written once
// after a run returns.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/codemend/codemend/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	artifact_path  TEXT NOT NULL,
	status         TEXT NOT NULL,
	stop_reason    TEXT NOT NULL DEFAULT '',
	quality_before INTEGER NOT NULL DEFAULT 0,
	quality_after  INTEGER NOT NULL DEFAULT 0,
	pr_reference   TEXT NOT NULL DEFAULT '',
	result_json    TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMP NOT NULL,
	finished_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS rounds (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	round            INTEGER NOT NULL,
	quality_score    INTEGER NOT NULL,
	fixes_generated  INTEGER NOT NULL,
	fixes_applied    INTEGER NOT NULL,
	fixes_validated  INTEGER NOT NULL,
	issues_new       INTEGER NOT NULL,
	issues_resolved  INTEGER NOT NULL,
	issues_persist   INTEGER NOT NULL,
	PRIMARY KEY (run_id, round)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Run is one persisted orchestration run
type Run struct {
	ID            string
	Kind          string // "fix" or "agents"
	ArtifactPath  string
	Status        string
	StopReason    string
	QualityBefore int
	QualityAfter  int
	PRReference   string
	Result        *types.WorkflowResult // nil for convergence-only runs
	Rounds        []*types.RoundRecord
	StartedAt     time.Time
	FinishedAt    time.Time
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// Store is a SQLite-backed run history store
type Store struct {
	db *sql.DB
}

// New opens (and initializes) the history database at path
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun persists a run and its rounds in one transaction
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	resultJSON := ""
	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = string(data)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, artifact_path, status, stop_reason,
			quality_before, quality_after, pr_reference, result_json,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.ArtifactPath, run.Status, run.StopReason,
		run.QualityBefore, run.QualityAfter, run.PRReference, resultJSON,
		run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, round := range run.Rounds {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rounds (run_id, round, quality_score,
				fixes_generated, fixes_applied, fixes_validated,
				issues_new, issues_resolved, issues_persist)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, round.Round, round.QualityScore,
			round.FixesGenerated, round.FixesApplied, round.FixesValidated,
			round.IssuesNew, round.IssuesResolved, round.IssuesPersist)
		if err != nil {
			return fmt.Errorf("failed to insert round %d: %w", round.Round, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first, without round detail
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, artifact_path, status, stop_reason,
			quality_before, quality_after, pr_reference, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(&run.ID, &run.Kind, &run.ArtifactPath, &run.Status,
			&run.StopReason, &run.QualityBefore, &run.QualityAfter,
			&run.PRReference, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run with its rounds and deserialized workflow result
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{}
	var resultJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, artifact_path, status, stop_reason,
			quality_before, quality_after, pr_reference, result_json,
			started_at, finished_at
		FROM runs WHERE id = ?`, id).Scan(
		&run.ID, &run.Kind, &run.ArtifactPath, &run.Status, &run.StopReason,
		&run.QualityBefore, &run.QualityAfter, &run.PRReference, &resultJSON,
		&run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if resultJSON != "" {
		run.Result = &types.WorkflowResult{}
		if err := json.Unmarshal([]byte(resultJSON), run.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT round, quality_score, fixes_generated, fixes_applied,
			fixes_validated, issues_new, issues_resolved, issues_persist
		FROM rounds WHERE run_id = ? ORDER BY round`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		round := &types.RoundRecord{}
		if err := rows.Scan(&round.Round, &round.QualityScore,
			&round.FixesGenerated, &round.FixesApplied, &round.FixesValidated,
			&round.IssuesNew, &round.IssuesResolved, &round.IssuesPersist); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		run.Rounds = append(run.Rounds, round)
	}
	return run, rows.Err()
}
