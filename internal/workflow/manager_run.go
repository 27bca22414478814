package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
)

// Start validates the dispatch table, requeues tasks left running by a
// previous process and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	if m.store == nil {
		return errors.New("workflow: queue store is required")
	}
	if err := m.registry.Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	if reset, err := m.store.ResetRunning(runCtx); err != nil {
		m.logger.Warn("could not requeue interrupted tasks",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_recovery_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "interrupted tasks stay running until the next restart"),
		)
	} else if reset > 0 {
		m.logger.Info("requeued interrupted tasks",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "queue_recovered"),
		)
	}

	go m.loop(runCtx)
	go m.cleanupLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion. The
// running task, if any, sees its context cancelled and is left running in
// the store so the next start requeues it.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	m.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case <-ticker.C:
		}
		m.drain(ctx)
	}
}

// drain dispatches active tasks oldest-first until none remain. A queue
// store failure ends the drain so the next poll tick retries.
func (m *Manager) drain(ctx context.Context) {
	if !m.acquire() {
		return
	}
	defer m.release()

	for ctx.Err() == nil {
		task, err := m.store.NextActive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to fetch next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			return
		}
		if task == nil {
			m.onQueueIdle(ctx)
			return
		}
		if err := m.dispatch(ctx, task); err != nil {
			return
		}
	}
}

func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	m.busy = false
	m.current = nil
	m.mu.Unlock()
}

// dispatch runs one task to a terminal state. It returns an error only when
// the outcome could not be recorded in the queue store.
func (m *Manager) dispatch(ctx context.Context, task *queue.Task) error {
	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithTaskKind(taskCtx, string(task.Kind))
	taskCtx = services.WithVideoID(taskCtx, task.VideoID)
	taskCtx = services.WithRequestID(taskCtx, uuid.NewString())
	logger := logging.WithContext(taskCtx, m.logger)

	running := queue.StatusRunning
	cleared := ""
	if _, err := m.store.Update(taskCtx, task.ID, task.Kind, queue.Patch{Status: &running, Error: &cleared}); err != nil {
		m.setLastError(err)
		logger.Error("failed to mark task running",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_update_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return err
	}
	task.Status = running
	m.setCurrent(task)
	m.onTaskStarted()

	logger.Info("task started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.Duration("deadline", m.taskTimeout),
	)
	started := m.now()

	processor, ok := m.registry.Lookup(task.Kind)
	if !ok {
		return m.failTask(taskCtx, task, fmt.Errorf("no processor registered for task kind %s", task.Kind))
	}

	run := m.invoke(taskCtx, processor, task.ID)
	if ctx.Err() != nil {
		logger.Info("task interrupted by shutdown",
			logging.String(logging.FieldEventType, "task_interrupted"),
		)
		return nil
	}
	if run.err == nil {
		return m.completeTask(taskCtx, task, m.now().Sub(started))
	}
	err := m.failTask(taskCtx, task, run.err)
	if errors.Is(run.err, services.ErrTimeout) {
		if run.pending != nil {
			m.awaitAbandoned(taskCtx, run.pending)
		}
		m.publishTimeout(taskCtx, task, run.err)
	}
	return err
}

type result struct{ err error }

// invocation is the outcome of one processor call. pending is set when the
// processor was still running at its deadline.
type invocation struct {
	err     error
	pending <-chan result
}

// invoke runs the processor under the task deadline. A processor that does
// not return by the deadline fails with services.ErrTimeout and is handed
// back through pending.
func (m *Manager) invoke(ctx context.Context, processor Processor, taskID string) invocation {
	runCtx, cancel := context.WithTimeout(ctx, m.taskTimeout)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("processor panic: %v", r)}
			}
		}()
		done <- result{err: processor.Process(runCtx, taskID)}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return invocation{err: m.timeoutError(res.err)}
		}
		return invocation{err: res.err}
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return invocation{err: ctx.Err()}
		}
		return invocation{err: m.timeoutError(nil), pending: done}
	}
}

// awaitAbandoned holds the dispatch slot until a processor that missed its
// deadline returns, for at most the abandon grace period.
func (m *Manager) awaitAbandoned(ctx context.Context, pending <-chan result) {
	timer := time.NewTimer(m.abandonGrace)
	defer timer.Stop()
	select {
	case <-pending:
	case <-timer.C:
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "processor still running after deadline", "processor_abandoned",
			logging.Duration("grace", m.abandonGrace),
			logging.String(logging.FieldErrorHint, "the processor ignores cancellation"),
			logging.String(logging.FieldImpact, "the next task may overlap the abandoned one"),
		)
	}
}

func (m *Manager) timeoutError(cause error) error {
	msg := fmt.Sprintf("task exceeded its %s deadline", m.taskTimeout)
	if cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		msg = fmt.Sprintf("%s (%s)", msg, services.Message(cause))
	}
	return services.Wrap(services.ErrTimeout, "", "run task", msg, nil)
}
