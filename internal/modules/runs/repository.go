// Package runs persists randomization run audit records.
package runs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles run-audit database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new runs repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create inserts a run record
func (r *Repository) Create(run *Run) error {
	unassigned, err := json.Marshal(run.Unassigned)
	if err != nil {
		return fmt.Errorf("failed to marshal unassigned list: %w", err)
	}
	skipped, err := json.Marshal(run.Skipped)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped list: %w", err)
	}

	query := `INSERT INTO runs
		(id, started_at, finished_at, status, subjects, assigned, unassigned, skipped, error, index_snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		run.ID,
		run.StartedAt.Unix(),
		run.FinishedAt.Unix(),
		run.Status,
		run.Subjects,
		run.Assigned,
		string(unassigned),
		string(skipped),
		run.Error,
		run.IndexSnapshot,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	r.log.Info().
		Str("run_id", run.ID).
		Str("status", run.Status).
		Int("assigned", run.Assigned).
		Msg("Recorded run")

	return nil
}

// GetByID returns one run, including its index snapshot
func (r *Repository) GetByID(id string) (*Run, error) {
	query := `SELECT id, started_at, finished_at, status, subjects, assigned, unassigned, skipped, error, index_snapshot
		FROM runs WHERE id = ?`

	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// Latest returns the most recently started run, or nil if none exist
func (r *Repository) Latest() (*Run, error) {
	query := `SELECT id, started_at, finished_at, status, subjects, assigned, unassigned, skipped, error, index_snapshot
		FROM runs ORDER BY started_at DESC, id DESC LIMIT 1`

	run, err := scanRun(r.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// List returns the most recent runs, newest first, without snapshots
func (r *Repository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, started_at, finished_at, status, subjects, assigned, unassigned, skipped, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt sql.NullInt64
		var unassigned, skipped string

		if err := rows.Scan(
			&run.ID,
			&startedAt,
			&finishedAt,
			&run.Status,
			&run.Subjects,
			&run.Assigned,
			&unassigned,
			&skipped,
			&run.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		fillRun(&run, startedAt, finishedAt, unassigned, skipped)
		result = append(result, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return result, nil
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt, finishedAt sql.NullInt64
	var unassigned, skipped string

	if err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.Status,
		&run.Subjects,
		&run.Assigned,
		&unassigned,
		&skipped,
		&run.Error,
		&run.IndexSnapshot,
	); err != nil {
		return nil, err
	}

	fillRun(&run, startedAt, finishedAt, unassigned, skipped)
	return &run, nil
}

func fillRun(run *Run, startedAt, finishedAt sql.NullInt64, unassigned, skipped string) {
	if startedAt.Valid {
		run.StartedAt = time.Unix(startedAt.Int64, 0).UTC()
	}
	if finishedAt.Valid {
		run.FinishedAt = time.Unix(finishedAt.Int64, 0).UTC()
	}

	// Lists were marshalled by Create; a decode failure leaves them empty
	// rather than failing the whole read.
	if err := json.Unmarshal([]byte(unassigned), &run.Unassigned); err != nil {
		run.Unassigned = []string{}
	}
	if err := json.Unmarshal([]byte(skipped), &run.Skipped); err != nil {
		run.Skipped = []string{}
	}
}
