package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
)

// NewTask describes a task to enqueue. Payload is marshalled to JSON unless
// it already is a json.RawMessage.
type NewTask struct {
	Kind    queue.Kind
	VideoID string
	Payload any
}

// AddTask enqueues a task and wakes the loop. A process task for a video
// that already has one pending or running returns the existing id instead.
func (m *Manager) AddTask(ctx context.Context, req NewTask) (string, error) {
	if _, ok := queue.ParseKind(string(req.Kind)); !ok {
		return "", services.Wrap(services.ErrValidation, "", "add task", fmt.Sprintf("unknown task kind %q", req.Kind), nil)
	}
	videoID := strings.TrimSpace(req.VideoID)
	if req.Kind == queue.KindProcess {
		if videoID == "" {
			return "", services.Wrap(services.ErrValidation, "", "add task", "process task requires a video id", nil)
		}
		existing, err := m.store.FindIncompleteProcess(ctx, videoID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			m.logger.Debug("process task already queued",
				logging.String(logging.FieldTaskID, existing.ID),
				logging.String(logging.FieldVideoID, videoID),
			)
			return existing.ID, nil
		}
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "", "add task", "invalid payload", err)
	}
	task := &queue.Task{Kind: req.Kind, VideoID: videoID, Payload: payload}
	if err := m.store.Add(ctx, task); err != nil {
		if errors.Is(err, queue.ErrDuplicateActive) {
			existing, findErr := m.store.FindIncompleteProcess(ctx, videoID)
			if findErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}
	m.logger.Info("task queued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTaskKind, string(task.Kind)),
		logging.String(logging.FieldVideoID, videoID),
		logging.String(logging.FieldEventType, "task_queued"),
	)
	m.Wake()
	return task.ID, nil
}

// Requeue resets a finished task to pending with a fresh payload, clearing
// its error and progress, and wakes the loop.
func (m *Manager) Requeue(ctx context.Context, task *queue.Task, payload any) error {
	if task == nil {
		return services.Wrap(services.ErrNotFound, "", "requeue", "task not found", nil)
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "", "requeue", "invalid payload", err)
	}
	pending := queue.StatusPending
	progress := 0
	cleared := ""
	ok, err := m.store.Update(ctx, task.ID, task.Kind, queue.Patch{
		Status:   &pending,
		Progress: &progress,
		Error:    &cleared,
		Payload:  encoded,
	})
	if err != nil {
		return err
	}
	if !ok {
		return services.Wrap(services.ErrNotFound, "", "requeue", fmt.Sprintf("task %s not found", task.ID), nil)
	}
	m.logger.Info("task requeued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldVideoID, task.VideoID),
		logging.String(logging.FieldEventType, "task_requeued"),
	)
	m.Wake()
	return nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
