package store

import (
	"fmt"
)

// migrate runs all pending migrations
func (s *Store) migrate() error {
	createMigrationsTableSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	if _, err := s.db.Exec(createMigrationsTableSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	s.logger.Debug("current schema version", "version", currentVersion)

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
				CREATE TABLE runs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					mode TEXT NOT NULL,
					start_time DATETIME NOT NULL,
					end_time DATETIME,
					activities INTEGER DEFAULT 0,
					downloaded INTEGER DEFAULT 0,
					not_found INTEGER DEFAULT 0,
					skipped INTEGER DEFAULT 0,
					status TEXT NOT NULL,
					error_message TEXT DEFAULT ''
				);
				CREATE INDEX idx_runs_start_time ON runs(start_time);
			`,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		s.logger.Debug("applied migration", "version", m.version)
	}

	return nil
}
