package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"redub/internal/api"
	"redub/internal/config"
	"redub/internal/deps"
	"redub/internal/events"
	"redub/internal/logging"
	"redub/internal/pipeline"
	"redub/internal/preflight"
	"redub/internal/queue"
	"redub/internal/workflow"
)

// HealthSource reports collaborator readiness.
type HealthSource interface {
	HealthCheck(ctx context.Context) []pipeline.Health
}

// EventSource exposes the retained status events.
type EventSource interface {
	Since(seq int64) []events.StatusEvent
	Dropped() int64
}

// Options wire a Daemon.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *workflow.Manager
	Service *api.Service
	Health  HealthSource
	Events  EventSource
}

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	manager *workflow.Manager
	service *api.Service
	health  HealthSource
	events  EventSource
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc

	depsOnce sync.Once
	deps     []deps.Status
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	Workflow      workflow.StatusSummary
	StageHealth   []pipeline.Health
	Dependencies  []deps.Status
	QueueDBPath   string
	LockFilePath  string
	DroppedEvents int64
}

// New constructs a daemon from its collaborators.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Manager == nil || opts.Service == nil {
		return nil, errors.New("daemon requires config, workflow manager and api service")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      opts.Config,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		manager:  opts.Manager,
		service:  opts.Service,
		health:   opts.Health,
		events:   opts.Events,
		lockPath: opts.Config.LockPath(),
		lock:     flock.New(opts.Config.LockPath()),
	}
	d.api = newAPIServer(opts.Config.Paths.APIBind, d, logger)
	return d, nil
}

// Service exposes the task-queue API the daemon serves.
func (d *Daemon) Service() *api.Service { return d.service }

// Handler returns the HTTP API handler without binding a listener.
func (d *Daemon) Handler() http.Handler { return d.api.routes() }

// Start acquires the daemon lock, launches the workflow manager and the HTTP
// API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another redub daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("redub daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. A task that
// is running keeps its running status and is requeued on the next start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start refuses to run"),
			logging.String(logging.FieldImpact, "a stale lock may block the next start"),
		)
	}
	d.running.Store(false)
	d.logger.Info("redub daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.manager.Status(ctx),
		Dependencies: d.dependencies(ctx),
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
	if d.health != nil {
		status.StageHealth = d.health.HealthCheck(ctx)
	}
	if d.events != nil {
		status.DroppedEvents = d.events.Dropped()
	}
	return status
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	store := d.manager.Store()
	if store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return store.CheckHealth(ctx)
}

// EventsSince returns buffered status events after seq, optionally limited to
// one video, and the sequence number to resume from.
func (d *Daemon) EventsSince(seq int64, videoID string) ([]events.StatusEvent, int64) {
	out := []events.StatusEvent{}
	next := seq
	if d.events == nil {
		return out, next
	}
	videoID = strings.TrimSpace(videoID)
	for _, event := range d.events.Since(seq) {
		next = event.Seq
		if videoID != "" && event.VideoID != videoID {
			continue
		}
		out = append(out, event)
	}
	return out, next
}

// dependencies checks external binaries once per process; installing a tool
// requires a daemon restart anyway.
func (d *Daemon) dependencies(ctx context.Context) []deps.Status {
	d.depsOnce.Do(func() {
		d.deps = preflight.CheckSystemDeps(ctx, d.cfg)
	})
	return d.deps
}

// APIStatus converts a Status into its transport shape.
func APIStatus(status Status) api.DaemonStatus {
	out := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		QueueDBPath:   status.QueueDBPath,
		LockFilePath:  status.LockFilePath,
		Workflow:      api.FromStatusSummary(status.Workflow, status.StageHealth),
		Dependencies:  make([]api.DependencyStatus, 0, len(status.Dependencies)),
		DroppedEvents: status.DroppedEvents,
	}
	for _, dep := range status.Dependencies {
		out.Dependencies = append(out.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return out
}
