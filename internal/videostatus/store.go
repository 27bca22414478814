package videostatus

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"redub/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

const statusColumns = "video_id, stage, progress, message, error_message, start_time, end_time, updated_at"

// Store persists video status records in the shared SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open prepares the video_status table on db.
func Open(ctx context.Context, db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("videostatus: nil database")
	}
	if err := sqlitex.EnsureSchema(ctx, db, "video_status", schemaSQL); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used for update stamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Update merge-patches the record for videoID, creating it with defaults
// when absent, and returns the stored result.
func (s *Store) Update(ctx context.Context, videoID string, patch Patch) (*Status, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, errors.New("videostatus: empty video id")
	}
	var result *Status
	err := sqlitex.RetryOnBusy(ctx, func() error {
		var err error
		result, err = s.updateTx(ctx, videoID, patch)
		return err
	})
	return result, err
}

func (s *Store) updateTx(ctx context.Context, videoID string, patch Patch) (*Status, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanOptional(tx.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM video_status WHERE video_id = ?`, videoID))
	if err != nil {
		return nil, err
	}
	if current == nil {
		current = newStatus(videoID)
	}
	patch.Apply(current)
	current.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO video_status (`+statusColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(video_id) DO UPDATE SET
             stage = excluded.stage,
             progress = excluded.progress,
             message = excluded.message,
             error_message = excluded.error_message,
             start_time = excluded.start_time,
             end_time = excluded.end_time,
             updated_at = excluded.updated_at`,
		current.VideoID,
		current.Stage,
		current.Progress,
		current.Message,
		sqlitex.NullableString(current.Error),
		sqlitex.NullableTime(current.StartTime),
		sqlitex.NullableTime(current.EndTime),
		sqlitex.FormatTime(current.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("write status for %s: %w", videoID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return current, nil
}

// Get returns the record for videoID, or nil if it was never initialized.
func (s *Store) Get(ctx context.Context, videoID string) (*Status, error) {
	status, err := scanOptional(s.db.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM video_status WHERE video_id = ?`, videoID))
	if err != nil {
		return nil, fmt.Errorf("get status for %s: %w", videoID, err)
	}
	return status, nil
}

// List returns all records, most recently updated first.
func (s *Store) List(ctx context.Context) ([]*Status, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM video_status ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list video status: %w", err)
	}
	defer rows.Close()
	var out []*Status
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, rows.Err()
}

func scanStatus(scanner interface{ Scan(dest ...any) error }) (*Status, error) {
	var (
		status     Status
		stage      string
		errMessage sql.NullString
		startRaw   sql.NullString
		endRaw     sql.NullString
		updatedRaw string
	)
	if err := scanner.Scan(&status.VideoID, &stage, &status.Progress, &status.Message, &errMessage, &startRaw, &endRaw, &updatedRaw); err != nil {
		return nil, err
	}
	status.Stage = Stage(stage)
	status.Error = errMessage.String
	status.StartTime = sqlitex.ParseNullTime(startRaw)
	status.EndTime = sqlitex.ParseNullTime(endRaw)
	if updated, err := sqlitex.ParseTime(updatedRaw); err == nil {
		status.UpdatedAt = updated
	}
	return &status, nil
}

func scanOptional(row *sql.Row) (*Status, error) {
	status, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return status, err
}
