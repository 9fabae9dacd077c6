// Package results persists per-iteration exploration outcomes in a sqlite
// database, so that long explorations can be inspected and failing
// iterations found again after the fact.
package results

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS iterations (
	run_id     TEXT    NOT NULL,
	iteration  INTEGER NOT NULL,
	strategy   TEXT    NOT NULL,
	seed       INTEGER NOT NULL,
	outcome    TEXT    NOT NULL,
	steps      INTEGER NOT NULL,
	error      TEXT,
	trace_path TEXT,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, iteration)
);
CREATE INDEX IF NOT EXISTS idx_iterations_outcome ON iterations (run_id, outcome);
`

// Iteration is one recorded exploration iteration.
type Iteration struct {
	RunID     string
	Iteration int
	Strategy  string
	Seed      int64
	Outcome   string
	Steps     int
	Error     string
	TracePath string
	CreatedAt time.Time
}

// Store records exploration iterations in a sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the results database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create results schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordIteration inserts one iteration's outcome.
func (s *Store) RecordIteration(it Iteration) error {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO iterations
		 (run_id, iteration, strategy, seed, outcome, steps, error, trace_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.RunID, it.Iteration, it.Strategy, it.Seed, it.Outcome,
		it.Steps, it.Error, it.TracePath, it.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record iteration %d: %w", it.Iteration, err)
	}
	return nil
}

// ListFailures returns every iteration of the run that did not complete
// cleanly, ordered by iteration.
func (s *Store) ListFailures(runID string) ([]Iteration, error) {
	rows, err := s.db.Query(
		`SELECT run_id, iteration, strategy, seed, outcome, steps, error, trace_path, created_at
		 FROM iterations
		 WHERE run_id = ? AND outcome != 'completed'
		 ORDER BY iteration`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []Iteration
	for rows.Next() {
		var it Iteration
		if err := rows.Scan(
			&it.RunID, &it.Iteration, &it.Strategy, &it.Seed, &it.Outcome,
			&it.Steps, &it.Error, &it.TracePath, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		failures = append(failures, it)
	}
	return failures, rows.Err()
}

// CountIterations returns the number of recorded iterations for the run.
func (s *Store) CountIterations(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM iterations WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count iterations: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
