// Package daemonrun assembles the daemon runtime from configuration and runs
// it until the process receives SIGINT or SIGTERM.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"redub/internal/api"
	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/daemon"
	"redub/internal/events"
	"redub/internal/ipc"
	"redub/internal/logging"
	"redub/internal/notifications"
	"redub/internal/pipeline"
	"redub/internal/preflight"
	"redub/internal/queue"
	"redub/internal/services/crawl"
	"redub/internal/services/synthesize"
	"redub/internal/services/transcribe"
	"redub/internal/services/translate"
	"redub/internal/services/upload"
	"redub/internal/videostatus"
	"redub/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Runtime owns every long-lived collaborator of one daemon process. Nothing
// in it is global; tests build as many as they like.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *queue.Store
	Statuses  *videostatus.Store
	Events    *events.Stream
	Artifacts *artifacts.Store
	Pipeline  *pipeline.Controller
	Manager   *workflow.Manager
	Service   *api.Service
	Daemon    *daemon.Daemon

	nats *events.NATSClient
}

// Build opens the queue database and wires the task processors, scheduler,
// task API and daemon. The caller owns the returned runtime and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	rt.Store = store

	statuses, err := videostatus.Open(ctx, store.DB())
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open video status store: %w", err)
	}
	rt.Statuses = statuses

	rt.Events = events.NewStream(statuses, logger)
	rt.Events.Attach(ctx, "log", events.LogObserver(logger))
	rt.attachNATS(ctx)

	rt.Artifacts = artifacts.NewStore(cfg.Paths.StagingDir)

	controller, err := pipeline.New(pipeline.Options{
		Tasks:       store,
		Statuses:    statuses,
		Events:      rt.Events,
		Artifacts:   rt.Artifacts,
		Transcriber: transcribe.New(cfg),
		Translator:  translate.New(cfg),
		Synthesizer: synthesize.New(cfg, synthesize.WithLogger(logger)),
		Defaults: pipeline.Defaults{
			TranslationProvider: cfg.Translation.Provider,
			SynthesisProvider:   cfg.Synthesis.Provider,
			BatchSize:           cfg.Translation.BatchSize,
		},
		Logger: logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Pipeline = controller

	uploader := upload.NewCommandUploader(cfg.Upload, nil)
	uploadProcessor, err := upload.NewProcessor(upload.Options{
		Tasks:     store,
		Statuses:  statuses,
		Events:    rt.Events,
		Artifacts: rt.Artifacts,
		Uploader:  uploader,
		Logger:    logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	registry := workflow.NewRegistry()
	processors := map[queue.Kind]workflow.Processor{
		queue.KindCrawl:   crawl.New(cfg, store, rt.Events, rt.Artifacts, crawl.WithLogger(logger)),
		queue.KindProcess: controller,
		queue.KindUpload:  uploadProcessor,
	}
	for _, kind := range queue.Kinds() {
		if err := registry.Register(kind, processors[kind]); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.Manager = workflow.NewManager(store, registry, workflow.Options{
		Config:   cfg,
		Notifier: notifications.NewService(cfg),
		Statuses: rt.Events,
		Logger:   logger,
	})

	rt.Service, err = api.NewService(rt.Manager, statuses, rt.Artifacts, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Daemon, err = daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logger,
		Manager: rt.Manager,
		Service: rt.Service,
		Health:  healthSet{controller, uploader},
		Events:  rt.Events,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) attachNATS(ctx context.Context) {
	url := rt.Config.Events.NATSURL
	if url == "" {
		return
	}
	client, err := events.ConnectNATS(url)
	if err != nil {
		logging.WarnWithContext(rt.Logger, "status fan-out to NATS disabled", "nats_connect_failed",
			logging.Error(err),
			logging.String("nats_url", url),
			logging.String(logging.FieldErrorHint, "check events.nats_url and that the NATS server is reachable"),
			logging.String(logging.FieldImpact, "status events are not published to NATS"),
		)
		return
	}
	rt.nats = client
	rt.Events.Attach(ctx, "nats", events.NewNATSObserver(client.Conn(), rt.Config.Events.Subject, rt.Logger))
}

// Close stops the daemon and releases every resource Build acquired.
func (rt *Runtime) Close() {
	if rt.Daemon != nil {
		rt.Daemon.Stop()
	}
	if rt.Events != nil {
		rt.Events.Close()
	}
	if rt.nats != nil {
		rt.nats.Close()
	}
	if rt.Store != nil {
		_ = rt.Store.Close()
	}
}

type healthSet struct {
	pipeline *pipeline.Controller
	uploader *upload.CommandUploader
}

func (h healthSet) HealthCheck(ctx context.Context) []pipeline.Health {
	out := h.pipeline.HealthCheck(ctx)
	return append(out, h.uploader.HealthCheck(ctx))
}

// Run starts the daemon and blocks until ctx ends or a termination signal
// arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPreflight(ctx, logger, cfg)

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("daemon assembly failed", logging.Error(err), logging.String(logging.FieldEventType, "daemon_build_failed"))
		return err
	}
	defer rt.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), rt.Daemon, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := rt.Daemon.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-ctx.Done()
	logger.Info("redub daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run redub config validate for details"),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail"),
		)
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}
