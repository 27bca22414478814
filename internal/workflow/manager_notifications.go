package workflow

import (
	"context"

	"redub/internal/logging"
	"redub/internal/notifications"
	"redub/internal/queue"
)

func (m *Manager) notifyCompletion(ctx context.Context, task *queue.Task) {
	switch task.Kind {
	case queue.KindProcess:
		m.publish(ctx, notifications.EventPipelineReady, notifications.Payload{
			"taskID":  task.ID,
			"videoID": task.VideoID,
		})
	case queue.KindUpload:
		var payload queue.UploadPayload
		_ = task.DecodePayload(&payload)
		m.publish(ctx, notifications.EventUploadCompleted, notifications.Payload{
			"taskID":   task.ID,
			"videoID":  task.VideoID,
			"title":    payload.Metadata.Title,
			"remoteID": payload.RemoteID,
		})
	case queue.KindCrawl:
	}
}

// onTaskStarted opens a queue session on the first task after idle.
func (m *Manager) onTaskStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.session.active {
		m.session = queueSession{active: true, start: m.now()}
	}
}

func (m *Manager) recordFinished(task *queue.Task, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copyTask := *task
	m.lastTask = &copyTask
	m.current = nil
	if failed {
		m.session.failed++
	} else {
		m.session.completed++
	}
}

// onQueueIdle closes the current session and reports it once.
func (m *Manager) onQueueIdle(ctx context.Context) {
	m.mu.Lock()
	session := m.session
	m.session = queueSession{}
	m.mu.Unlock()
	if !session.active {
		return
	}
	elapsed := m.now().Sub(session.start)
	m.logger.Info("queue drained",
		logging.Int("completed", session.completed),
		logging.Int("failed", session.failed),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "queue_drained"),
	)
	m.publish(ctx, notifications.EventQueueDrained, notifications.Payload{
		"processed": session.completed,
		"failed":    session.failed,
		"duration":  elapsed,
	})
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		m.logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check ntfy topic and network access"),
			logging.String(logging.FieldImpact, "operators were not notified"),
		)
	}
}
