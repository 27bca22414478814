package events

import (
	"context"
	"log/slog"

	"redub/internal/logging"
)

// LogObserver writes stage transitions at debug level.
func LogObserver(logger *slog.Logger) Observer {
	logger = logging.NewComponentLogger(logger, "status")
	return ObserverFunc(func(ctx context.Context, event StatusEvent) {
		if event.Status == nil {
			return
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldVideoID, event.VideoID),
			logging.String(logging.FieldStage, string(event.Status.Stage)),
			logging.Int("progress", event.Status.Progress),
			logging.Int64("seq", event.Seq),
		}
		if event.TaskID != "" {
			attrs = append(attrs, logging.String(logging.FieldTaskID, event.TaskID))
		}
		if event.Status.Message != "" {
			attrs = append(attrs, logging.String("message", event.Status.Message))
		}
		logger.DebugContext(ctx, "video status updated", logging.Args(attrs...)...)
	})
}
