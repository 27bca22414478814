package workflow

import (
	"context"
	"errors"
	"time"

	"redub/internal/logging"
	"redub/internal/notifications"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/videostatus"
)

func (m *Manager) completeTask(ctx context.Context, task *queue.Task, elapsed time.Duration) error {
	logger := logging.WithContext(ctx, m.logger)
	// Processors like upload may have rewritten the payload; reload before
	// reporting so notifications see the final state.
	if fresh, err := m.store.GetByID(ctx, task.ID); err == nil && fresh != nil {
		task = fresh
	}
	ok, err := m.store.Update(ctx, task.ID, task.Kind, queue.StatusPatch(queue.StatusCompleted, 100, ""))
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to mark task completed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_update_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return err
	}
	if !ok {
		logger.Warn("task removed while running",
			logging.String(logging.FieldEventType, "task_vanished"),
			logging.String(logging.FieldImpact, "completion was not recorded"),
		)
		return nil
	}
	task.Status = queue.StatusCompleted
	task.Progress = 100
	task.Error = ""
	m.recordFinished(task, false)

	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("elapsed", elapsed),
	)
	m.notifyCompletion(ctx, task)
	return nil
}

func (m *Manager) failTask(ctx context.Context, task *queue.Task, cause error) error {
	logger := logging.WithContext(ctx, m.logger)
	message := services.Message(cause)
	if message == "" {
		message = "task failed"
	}
	failed := queue.StatusFailed
	ok, err := m.store.Update(ctx, task.ID, task.Kind, queue.Patch{Status: &failed, Error: &message})
	if err != nil {
		m.setLastError(err)
		logger.Error("failed to mark task failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_update_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return err
	}
	m.setLastError(cause)
	task.Status = failed
	task.Error = message
	m.recordFinished(task, true)
	if !ok {
		return nil
	}

	details := services.Details(cause)
	attrs := []logging.Attr{
		logging.Error(cause),
		logging.String("error_kind", string(details.Kind)),
		logging.String(logging.FieldEventType, "task_failed"),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}
	if errors.Is(cause, services.ErrTimeout) {
		attrs = append(attrs, logging.Alert("deadline_exceeded"))
	}
	logging.ErrorWithContext(logger, "task failed", "task_failed", attrs...)

	m.publish(ctx, notifications.EventTaskFailed, notifications.Payload{
		"kind":    string(task.Kind),
		"taskID":  task.ID,
		"videoID": task.VideoID,
		"error":   message,
	})
	return nil
}

// publishTimeout moves the video of a timed-out process task to the error
// stage.
func (m *Manager) publishTimeout(ctx context.Context, task *queue.Task, cause error) {
	if m.statuses == nil || task.Kind != queue.KindProcess || task.VideoID == "" {
		return
	}
	stage := videostatus.StageError
	caption := "processing timed out"
	message := services.Message(cause)
	end := m.now()
	patch := videostatus.Patch{Stage: &stage, Message: &caption, Error: &message, EndTime: &end}
	if _, err := m.statuses.Publish(context.WithoutCancel(ctx), task.VideoID, task.ID, patch); err != nil {
		logging.WithContext(ctx, m.logger).Error("failed to record timeout status",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_persist_failed"),
		)
	}
}
