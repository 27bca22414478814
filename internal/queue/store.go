package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"redub/internal/config"
	"redub/internal/sqlitex"
)

// ErrDuplicateActive is returned when a second active process task would be
// stored for the same video.
var ErrDuplicateActive = errors.New("video already has an active process task")

// Store manages task persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the queue database described by cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath())
}

// OpenPath opens the queue database at path and applies the schema.
func OpenPath(path string) (*Store, error) {
	db, err := sqlitex.Open(path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB exposes the connection so sibling stores can share the database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// SetClock overrides the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add persists a new task. Missing id, status, and timestamps are filled in.
func (s *Store) Add(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("add task: nil task")
	}
	if _, ok := ParseKind(string(task.Kind)); !ok {
		return fmt.Errorf("add task: unknown kind %q", task.Kind)
	}
	now := s.now().UTC()
	if task.ID == "" {
		task.ID = NewTaskID(now)
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if _, ok := ParseStatus(string(task.Status)); !ok {
		return fmt.Errorf("add task: unknown status %q", task.Status)
	}
	if err := validateProgress(task.Progress); err != nil {
		return fmt.Errorf("add task: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	if len(task.Payload) == 0 {
		task.Payload = []byte("{}")
	}

	_, err := sqlitex.Exec(ctx, s.db,
		`INSERT INTO tasks (id, kind, status, progress, video_id, payload, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Kind,
		task.Status,
		task.Progress,
		sqlitex.NullableString(task.VideoID),
		string(task.Payload),
		sqlitex.NullableString(task.Error),
		sqlitex.FormatTime(task.CreatedAt),
		sqlitex.FormatTime(task.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err, "tasks.video_id") {
			return fmt.Errorf("add task for video %s: %w", task.VideoID, ErrDuplicateActive)
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get fetches a task by id and kind. It returns nil when absent.
func (s *Store) Get(ctx context.Context, id string, kind Kind) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND kind = ?`, id, kind)
	return scanOptional(row)
}

// GetByID fetches a task by id regardless of kind. It returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanOptional(row)
}

// Update merge-patches the task identified by (id, kind). It reports false
// without error when the task does not exist.
func (s *Store) Update(ctx context.Context, id string, kind Kind, patch Patch) (bool, error) {
	var updated bool
	err := sqlitex.RetryOnBusy(ctx, func() error {
		var err error
		updated, err = s.updateTx(ctx, id, kind, patch)
		return err
	})
	return updated, err
}

func (s *Store) updateTx(ctx context.Context, id string, kind Kind, patch Patch) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ? AND kind = ?`, id, kind)
	task, err := scanOptional(row)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	if err := applyPatch(task, patch); err != nil {
		return false, fmt.Errorf("update task %s: %w", id, err)
	}
	task.UpdatedAt = nextUpdatedAt(task.UpdatedAt, s.now())

	if _, err := tx.ExecContext(ctx,
		`UPDATE tasks
         SET status = ?, progress = ?, video_id = ?, payload = ?, error_message = ?, updated_at = ?
         WHERE id = ? AND kind = ?`,
		task.Status,
		task.Progress,
		sqlitex.NullableString(task.VideoID),
		string(task.Payload),
		sqlitex.NullableString(task.Error),
		sqlitex.FormatTime(task.UpdatedAt),
		id,
		kind,
	); err != nil {
		if isUniqueViolation(err, "tasks.video_id") {
			return false, fmt.Errorf("update task %s: %w", id, ErrDuplicateActive)
		}
		return false, fmt.Errorf("update task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

// Remove deletes a task. It reports whether a row was removed.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := sqlitex.Exec(ctx, s.db, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func applyPatch(task *Task, patch Patch) error {
	if patch.Status != nil {
		if _, ok := ParseStatus(string(*patch.Status)); !ok {
			return fmt.Errorf("unknown status %q", *patch.Status)
		}
		task.Status = *patch.Status
	}
	if patch.Progress != nil {
		if err := validateProgress(*patch.Progress); err != nil {
			return err
		}
		task.Progress = *patch.Progress
	}
	if patch.VideoID != nil {
		task.VideoID = strings.TrimSpace(*patch.VideoID)
	}
	if patch.Payload != nil {
		task.Payload = append([]byte(nil), patch.Payload...)
	}
	if patch.Error != nil {
		task.Error = *patch.Error
	}
	return nil
}

// nextUpdatedAt keeps updated_at strictly increasing even when the clock
// does not advance between two writes.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC()
	floor := prev.Add(time.Microsecond)
	if now.Before(floor) {
		return floor
	}
	return now
}

func validateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress %d out of range [0,100]", progress)
	}
	return nil
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
