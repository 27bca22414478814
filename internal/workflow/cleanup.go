package workflow

import (
	"context"
	"time"

	"redub/internal/logging"
)

// Cleanup purges completed and failed tasks older than maxAge. A
// non-positive maxAge uses the configured retention.
func (m *Manager) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = m.cleanupMaxAge
	}
	removed, err := m.store.Cleanup(ctx, maxAge, m.now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("purged finished tasks",
			logging.Int64("removed", removed),
			logging.Duration("max_age", maxAge),
			logging.String(logging.FieldEventType, "queue_cleanup"),
		)
	}
	return removed, nil
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Cleanup(ctx, 0); err != nil && ctx.Err() == nil {
				m.logger.Warn("task cleanup failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "queue_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
					logging.String(logging.FieldImpact, "finished tasks accumulate until the next pass"),
				)
			}
		}
	}
}
