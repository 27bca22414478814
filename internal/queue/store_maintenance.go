package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"redub/internal/sqlitex"
)

// Cleanup removes completed and failed tasks created before now-maxAge.
// Pending and running tasks are never touched.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	if maxAge <= 0 {
		return 0, fmt.Errorf("cleanup: max age must be positive, got %s", maxAge)
	}
	cutoff := sqlitex.FormatTime(now.Add(-maxAge))
	res, err := sqlitex.Exec(ctx, s.db,
		`DELETE FROM tasks WHERE status IN (?, ?) AND created_at < ?`,
		StatusCompleted, StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetRunning moves tasks left running by a previous daemon back to pending
// so the scheduler picks them up again. Each row's updated_at advances by
// the same rule as Update.
func (s *Store) ResetRunning(ctx context.Context) (int64, error) {
	var reset int64
	err := sqlitex.RetryOnBusy(ctx, func() error {
		var err error
		reset, err = s.resetRunningTx(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reset running tasks: %w", err)
	}
	return reset, nil
}

func (s *Store) resetRunningTx(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, updated_at FROM tasks WHERE status = ?`, StatusRunning)
	if err != nil {
		return 0, err
	}
	stamps := make(map[string]time.Time)
	for rows.Next() {
		var id, updated string
		if err := rows.Scan(&id, &updated); err != nil {
			_ = rows.Close()
			return 0, err
		}
		prev, err := sqlitex.ParseTime(updated)
		if err != nil {
			prev = time.Time{}
		}
		stamps[id] = prev
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := s.now()
	for id, prev := range stamps {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusPending, sqlitex.FormatTime(nextUpdatedAt(prev, now)), id, StatusRunning,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(stamps)), nil
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusRunning:
			health.Running += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth inspects the queue database file and reports what it found. The
// returned error names the first check that failed; the summary carries the
// results gathered up to that point.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}
	switch info, err := os.Stat(s.path); {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat queue database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var tables int
	var integrity string
	checks := []struct {
		name string
		run  func() error
	}{
		{"ping queue database", func() error {
			if err := s.db.PingContext(ctx); err != nil {
				return err
			}
			health.DatabaseReadable = true
			return nil
		}},
		{"read schema version", func() error {
			return s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&health.SchemaVersion)
		}},
		{"query table info", func() error {
			err := s.db.QueryRowContext(ctx,
				"SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'").Scan(&tables)
			health.TableExists = err == nil && tables > 0
			return err
		}},
		{"integrity check", func() error {
			if !health.TableExists {
				return nil
			}
			err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity)
			health.IntegrityCheck = err == nil && integrity == "ok"
			return err
		}},
		{"count tasks", func() error {
			if !health.TableExists {
				return nil
			}
			return s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks").Scan(&health.TotalTasks)
		}},
	}
	for _, check := range checks {
		if err := check.run(); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return health, nil
}
