package queue

import (
	"database/sql"
	"errors"

	"redub/internal/sqlitex"
)

const taskColumns = "id, kind, status, progress, video_id, payload, error_message, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id         string
		kind       string
		status     string
		progress   int
		videoID    sql.NullString
		payload    sql.NullString
		errMessage sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &kind, &status, &progress, &videoID, &payload, &errMessage, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	task := &Task{
		ID:       id,
		Kind:     Kind(kind),
		Status:   Status(status),
		Progress: progress,
		VideoID:  videoID.String,
		Error:    errMessage.String,
	}
	if payload.Valid && payload.String != "" {
		task.Payload = []byte(payload.String)
	}
	if created, err := sqlitex.ParseTime(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := sqlitex.ParseTime(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func scanOptional(row *sql.Row) (*Task, error) {
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	defer rows.Close()
	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
