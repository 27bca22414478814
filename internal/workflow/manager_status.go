package workflow

import (
	"context"

	"redub/internal/queue"
)

// StatusSummary reports the scheduler state for status commands.
type StatusSummary struct {
	Running     bool
	Busy        bool
	CurrentTask *queue.Task
	LastTask    *queue.Task
	LastError   string
	QueueStats  map[queue.Status]int
}

// Status returns a snapshot of the manager and queue counts.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running: m.running,
		Busy:    m.busy,
	}
	if m.current != nil {
		current := *m.current
		summary.CurrentTask = &current
	}
	if m.lastTask != nil {
		last := *m.lastTask
		summary.LastTask = &last
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	if stats, err := m.store.Stats(ctx); err == nil {
		summary.QueueStats = stats
	}
	return summary
}

func (m *Manager) setCurrent(task *queue.Task) {
	m.mu.Lock()
	copyTask := *task
	m.current = &copyTask
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
