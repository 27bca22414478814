package queue

import (
	"context"
	"fmt"

	"redub/internal/sqlitex"
)

// ListAll returns every task of kind, newest first.
func (s *Store) ListAll(ctx context.Context, kind Kind) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE kind = ? ORDER BY created_at DESC, seq DESC`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", kind, err)
	}
	return scanTasks(rows)
}

// ListActive returns pending and running tasks of kind in FIFO order.
func (s *Store) ListActive(ctx context.Context, kind Kind) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE kind = ? AND status IN (?, ?)
         ORDER BY created_at ASC, seq ASC`,
		kind, StatusPending, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("list active %s tasks: %w", kind, err)
	}
	return scanTasks(rows)
}

// List returns tasks of any kind filtered by status, oldest first. With no
// statuses every task is returned.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + sqlitex.Placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at ASC, seq ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return scanTasks(rows)
}

// NextActive returns the globally oldest pending or running task across all
// kinds, or nil when the queue is idle.
func (s *Store) NextActive(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE status IN (?, ?)
         ORDER BY created_at ASC, seq ASC
         LIMIT 1`,
		StatusPending, StatusRunning)
	task, err := scanOptional(row)
	if err != nil {
		return nil, fmt.Errorf("next active task: %w", err)
	}
	return task, nil
}

// FindIncompleteProcess returns the active process task for videoID, if any.
func (s *Store) FindIncompleteProcess(ctx context.Context, videoID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE kind = ? AND video_id = ? AND status IN (?, ?)
         ORDER BY created_at ASC, seq ASC
         LIMIT 1`,
		KindProcess, videoID, StatusPending, StatusRunning)
	task, err := scanOptional(row)
	if err != nil {
		return nil, fmt.Errorf("find incomplete process task: %w", err)
	}
	return task, nil
}

// FindLatestProcess returns the most recently created process task for
// videoID in any status.
func (s *Store) FindLatestProcess(ctx context.Context, videoID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE kind = ? AND video_id = ?
         ORDER BY created_at DESC, seq DESC
         LIMIT 1`,
		KindProcess, videoID)
	task, err := scanOptional(row)
	if err != nil {
		return nil, fmt.Errorf("find latest process task: %w", err)
	}
	return task, nil
}

// ListForVideo returns every task touching videoID, newest first.
func (s *Store) ListForVideo(ctx context.Context, videoID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE video_id = ? ORDER BY created_at DESC, seq DESC`, videoID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for video %s: %w", videoID, err)
	}
	return scanTasks(rows)
}
