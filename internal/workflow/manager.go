package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"redub/internal/config"
	"redub/internal/logging"
	"redub/internal/notifications"
	"redub/internal/queue"
	"redub/internal/videostatus"
)

// StatusPublisher persists and fans out a video status patch.
type StatusPublisher interface {
	Publish(ctx context.Context, videoID, taskID string, patch videostatus.Patch) (*videostatus.Status, error)
}

// Options tune a Manager. Zero durations fall back to the config values.
type Options struct {
	Config          *config.Config
	Notifier        notifications.Service
	Statuses        StatusPublisher
	Logger          *slog.Logger
	TaskTimeout     time.Duration
	AbandonGrace    time.Duration
	PollInterval    time.Duration
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	Now             func() time.Time
}

// Manager coordinates queue processing using registered processors.
type Manager struct {
	store    *queue.Store
	registry *Registry
	notifier notifications.Service
	statuses StatusPublisher
	logger   *slog.Logger
	now      func() time.Time

	taskTimeout     time.Duration
	abandonGrace    time.Duration
	pollInterval    time.Duration
	cleanupInterval time.Duration
	cleanupMaxAge   time.Duration

	wake chan struct{}

	mu       sync.RWMutex
	running  bool
	busy     bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	current  *queue.Task
	lastTask *queue.Task

	session queueSession
}

// queueSession tracks one busy period between drains for notifications.
type queueSession struct {
	active    bool
	start     time.Time
	completed int
	failed    int
}

const (
	fallbackTaskTimeout     = 2 * time.Hour
	fallbackAbandonGrace    = 30 * time.Second
	fallbackPollInterval    = 3 * time.Second
	fallbackCleanupInterval = time.Hour
	fallbackCleanupMaxAge   = 7 * 24 * time.Hour
)

// NewManager constructs a new workflow manager.
func NewManager(store *queue.Store, registry *Registry, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(opts.Config)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if registry == nil {
		registry = NewRegistry()
	}

	m := &Manager{
		store:           store,
		registry:        registry,
		notifier:        notifier,
		statuses:        opts.Statuses,
		logger:          logging.NewComponentLogger(logger, "workflow-manager"),
		now:             now,
		taskTimeout:     opts.TaskTimeout,
		abandonGrace:    opts.AbandonGrace,
		pollInterval:    opts.PollInterval,
		cleanupInterval: opts.CleanupInterval,
		cleanupMaxAge:   opts.CleanupMaxAge,
		wake:            make(chan struct{}, 1),
	}
	if cfg := opts.Config; cfg != nil {
		if m.taskTimeout <= 0 {
			m.taskTimeout = cfg.TaskTimeout()
		}
		if m.pollInterval <= 0 {
			m.pollInterval = cfg.PollInterval()
		}
		if m.cleanupInterval <= 0 {
			m.cleanupInterval = cfg.CleanupInterval()
		}
		if m.cleanupMaxAge <= 0 {
			m.cleanupMaxAge = cfg.CleanupMaxAge()
		}
	}
	if m.taskTimeout <= 0 {
		m.taskTimeout = fallbackTaskTimeout
	}
	if m.abandonGrace <= 0 {
		m.abandonGrace = fallbackAbandonGrace
	}
	if m.pollInterval <= 0 {
		m.pollInterval = fallbackPollInterval
	}
	if m.cleanupInterval <= 0 {
		m.cleanupInterval = fallbackCleanupInterval
	}
	if m.cleanupMaxAge <= 0 {
		m.cleanupMaxAge = fallbackCleanupMaxAge
	}
	return m
}

// Registry returns the manager's dispatch table.
func (m *Manager) Registry() *Registry { return m.registry }

// Store returns the backing task store.
func (m *Manager) Store() *queue.Store { return m.store }

// Wake asks the loop to scan for work without waiting for the poll tick.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
