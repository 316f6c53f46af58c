// Package store persists a history of backup runs to a local SQLite
// database, so the status command can show what past runs did without
// re-deriving anything from the backup directory.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for run history.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens the SQLite database at dbPath and runs migrations.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateRun inserts a new Run and sets its ID.
func (s *Store) CreateRun(run *Run) error {
	const query = `
		INSERT INTO runs (
			mode, start_time, end_time, activities, downloaded,
			not_found, skipped, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.Mode, run.StartTime, run.EndTime, run.Activities,
		run.Downloaded, run.NotFound, run.Skipped, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateRun updates an existing Run by ID.
func (s *Store) UpdateRun(run *Run) error {
	const query = `
		UPDATE runs SET
			mode = ?, start_time = ?, end_time = ?, activities = ?,
			downloaded = ?, not_found = ?, skipped = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Mode, run.StartTime, run.EndTime, run.Activities,
		run.Downloaded, run.NotFound, run.Skipped, run.Status,
		run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run not found: %d", run.ID)
	}

	return nil
}

// GetRun retrieves a Run by ID.
func (s *Store) GetRun(id int64) (*Run, error) {
	const query = `
		SELECT id, mode, start_time, end_time, activities, downloaded,
		       not_found, skipped, status, error_message
		FROM runs WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRow(query, id).Scan(
		&run.ID, &run.Mode, &run.StartTime, &run.EndTime,
		&run.Activities, &run.Downloaded, &run.NotFound,
		&run.Skipped, &run.Status, &run.ErrorMessage,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves the most recent runs, newest first. limit <= 0 means
// no limit.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, mode, start_time, end_time, activities, downloaded,
		       not_found, skipped, status, error_message
		FROM runs
		ORDER BY start_time DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.Mode, &run.StartTime, &run.EndTime,
			&run.Activities, &run.Downloaded, &run.NotFound,
			&run.Skipped, &run.Status, &run.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}
