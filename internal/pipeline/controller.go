package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/language"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/videostatus"
)

// TaskLoader fetches the task being processed.
type TaskLoader interface {
	GetByID(ctx context.Context, id string) (*queue.Task, error)
}

// StatusReader reads the persisted video status.
type StatusReader interface {
	Get(ctx context.Context, videoID string) (*videostatus.Status, error)
}

// StatusPublisher persists and fans out a status patch.
type StatusPublisher interface {
	Publish(ctx context.Context, videoID, taskID string, patch videostatus.Patch) (*videostatus.Status, error)
}

// Defaults fill process options the request left empty.
type Defaults struct {
	TargetLanguage      string
	TranslationProvider string
	SynthesisProvider   string
	SubtitleStyle       string
	BatchSize           int
}

// Options wire a Controller.
type Options struct {
	Tasks       TaskLoader
	Statuses    StatusReader
	Events      StatusPublisher
	Artifacts   *artifacts.Store
	Transcriber Transcriber
	Translator  Translator
	Synthesizer Synthesizer
	Defaults    Defaults
	Logger      *slog.Logger
	Now         func() time.Time
}

// Controller runs process tasks.
type Controller struct {
	tasks       TaskLoader
	statuses    StatusReader
	events      StatusPublisher
	artifacts   *artifacts.Store
	transcriber Transcriber
	translator  Translator
	synthesizer Synthesizer
	defaults    Defaults
	logger      *slog.Logger
	now         func() time.Time
}

const defaultBatchSize = 5

// New validates opts and builds a Controller.
func New(opts Options) (*Controller, error) {
	switch {
	case opts.Tasks == nil:
		return nil, errors.New("pipeline: task loader required")
	case opts.Statuses == nil:
		return nil, errors.New("pipeline: status reader required")
	case opts.Events == nil:
		return nil, errors.New("pipeline: status publisher required")
	case opts.Artifacts == nil:
		return nil, errors.New("pipeline: artifact store required")
	case opts.Transcriber == nil, opts.Translator == nil, opts.Synthesizer == nil:
		return nil, errors.New("pipeline: transcriber, translator and synthesizer required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaults := opts.Defaults
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = defaultBatchSize
	}
	if strings.TrimSpace(defaults.TargetLanguage) == "" {
		defaults.TargetLanguage = "en-US"
	}
	if strings.TrimSpace(defaults.SubtitleStyle) == "" {
		defaults.SubtitleStyle = artifacts.StyleBilingual
	}
	return &Controller{
		tasks:       opts.Tasks,
		statuses:    opts.Statuses,
		events:      opts.Events,
		artifacts:   opts.Artifacts,
		transcriber: opts.Transcriber,
		translator:  opts.Translator,
		synthesizer: opts.Synthesizer,
		defaults:    defaults,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		now:         now,
	}, nil
}

// run is the per-task working state.
type run struct {
	taskID      string
	videoID     string
	options     queue.ProcessOptions
	retry       *Stage
	progress    int
	current     Stage
	transcript  *artifacts.Transcription
	translation *artifacts.Translation
	synthesis   *artifacts.SynthesisManifest
	logger      *slog.Logger
}

// Process is the processor for process tasks.
func (c *Controller) Process(ctx context.Context, taskID string) error {
	task, err := c.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "", "load task", fmt.Sprintf("task %s not found", taskID), nil)
	}
	if task.Kind != queue.KindProcess {
		return services.Wrap(services.ErrValidation, "", "load task", fmt.Sprintf("task %s is a %s task", taskID, task.Kind), nil)
	}
	var payload queue.ProcessPayload
	if err := task.DecodePayload(&payload); err != nil {
		return services.Wrap(services.ErrValidation, "", "decode payload", "invalid process payload", err)
	}
	videoID := strings.TrimSpace(payload.VideoID)
	if videoID == "" {
		videoID = strings.TrimSpace(task.VideoID)
	}
	if videoID == "" {
		return services.Wrap(services.ErrValidation, "", "decode payload", "process task has no video id", nil)
	}

	ctx = services.WithVideoID(ctx, videoID)
	r := &run{
		taskID:  task.ID,
		videoID: videoID,
		options: c.withDefaults(payload.Options),
		current: Transcribe,
		logger:  logging.WithContext(ctx, c.logger),
	}
	if step := strings.TrimSpace(r.options.RetryFromStep); step != "" {
		stage, ok := ParseStage(step)
		if !ok {
			return c.fail(ctx, r, services.Wrap(services.ErrValidation, "", "parse options",
				fmt.Sprintf("unknown retry step %q", step), nil))
		}
		r.retry = &stage
	}

	if err := c.begin(ctx, r); err != nil {
		return err
	}
	for _, stage := range orderedStages {
		r.current = stage
		stageCtx := services.WithStage(ctx, stage.Name)
		if ShouldRun(stage, r.progress, r.retry) {
			if err := c.runStage(stageCtx, r, stage); err != nil {
				return c.fail(stageCtx, r, err)
			}
			continue
		}
		if err := c.skipStage(stageCtx, r, stage); err != nil {
			return c.fail(stageCtx, r, err)
		}
	}
	return c.finish(ctx, r)
}

func (c *Controller) withDefaults(opts queue.ProcessOptions) queue.ProcessOptions {
	if strings.TrimSpace(opts.TargetLanguage) == "" {
		opts.TargetLanguage = c.defaults.TargetLanguage
	}
	opts.TargetLanguage = language.Normalize(opts.TargetLanguage)
	if strings.TrimSpace(opts.SourceLanguage) == "" {
		if language.IsEnglish(opts.TargetLanguage) {
			opts.SourceLanguage = "zh-CN"
		} else {
			opts.SourceLanguage = "en-US"
		}
	}
	opts.SourceLanguage = language.Normalize(opts.SourceLanguage)
	if strings.TrimSpace(opts.TranslationProvider) == "" {
		opts.TranslationProvider = c.defaults.TranslationProvider
	}
	if strings.TrimSpace(opts.SynthesisProvider) == "" {
		opts.SynthesisProvider = c.defaults.SynthesisProvider
	}
	if strings.TrimSpace(opts.SubtitleStyle) == "" {
		opts.SubtitleStyle = c.defaults.SubtitleStyle
	}
	return opts
}

// begin reads the stored progress and, for a user retry, rewinds the status
// to the retry stage.
func (c *Controller) begin(ctx context.Context, r *run) error {
	status, err := c.statuses.Get(ctx, r.videoID)
	if err != nil {
		return fmt.Errorf("read video status: %w", err)
	}
	if status != nil {
		r.progress = status.Progress
	}
	start := c.now()

	if r.retry != nil {
		r.progress = r.retry.Lower
		patch := videostatus.StagePatch(r.retry.Status, r.retry.Lower, fmt.Sprintf("retrying from %s", r.retry.Status))
		cleared := ""
		patch.Error = &cleared
		patch.StartTime = &start
		patch.ClearEndTime = true
		if _, err := c.events.Publish(ctx, r.videoID, r.taskID, patch); err != nil {
			return fmt.Errorf("reset video status: %w", err)
		}
		r.logger.Info("retry requested",
			logging.String(logging.FieldEventType, "retry_reset"),
			logging.String("retry_from", string(r.retry.Status)),
		)
		return nil
	}

	patch := videostatus.Patch{StartTime: &start, ClearEndTime: true}
	if _, err := c.events.Publish(ctx, r.videoID, r.taskID, patch); err != nil {
		return fmt.Errorf("start video status: %w", err)
	}
	return nil
}

// advance publishes a stage update. Progress never moves backwards.
func (c *Controller) advance(ctx context.Context, r *run, stage videostatus.Stage, progress int, message string) error {
	if progress < r.progress {
		progress = r.progress
	}
	if _, err := c.events.Publish(ctx, r.videoID, r.taskID, videostatus.StagePatch(stage, progress, message)); err != nil {
		return fmt.Errorf("publish %s status: %w", stage, err)
	}
	r.progress = progress
	return nil
}

func (c *Controller) runStage(ctx context.Context, r *run, stage Stage) error {
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("stored_progress", r.progress),
	)
	started := c.now()

	var err error
	switch stage.Name {
	case Transcribe.Name:
		err = c.transcribe(ctx, r)
	case Translate.Name:
		err = c.translate(ctx, r)
	case Synthesize.Name:
		err = c.synthesize(ctx, r)
	case Edit.Name:
		err = c.edit(ctx, r)
	default:
		err = fmt.Errorf("unknown stage %s", stage.Name)
	}
	if err != nil {
		return err
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", c.now().Sub(started)),
		logging.Int("progress", r.progress),
	)
	return nil
}

func (c *Controller) skipStage(ctx context.Context, r *run, stage Stage) error {
	var err error
	switch stage.Name {
	case Transcribe.Name:
		r.transcript, err = c.artifacts.LoadTranscription(r.videoID)
	case Translate.Name:
		r.translation, err = c.artifacts.LoadTranslation(r.videoID)
	case Synthesize.Name:
		r.synthesis, err = c.artifacts.LoadSynthesis(r.videoID)
	case Edit.Name:
		// edit leaves no artifact to reload
	}
	if err != nil {
		return err
	}
	logging.WithContext(ctx, c.logger).Info("stage skipped",
		logging.String(logging.FieldEventType, "stage_skip"),
		logging.String("reason", "artifact reloaded"),
		logging.Int("stored_progress", r.progress),
	)
	return nil
}

// fail records err on the video status, keeping the last persisted progress,
// and returns err unchanged.
func (c *Controller) fail(ctx context.Context, r *run, err error) error {
	message := services.Message(err)
	end := c.now()
	stage := videostatus.StageError
	caption := fmt.Sprintf("%s failed", r.current.Status)
	patch := videostatus.Patch{Stage: &stage, Error: &message, Message: &caption, EndTime: &end}
	if _, pubErr := c.events.Publish(context.WithoutCancel(ctx), r.videoID, r.taskID, patch); pubErr != nil {
		r.logger.Error("failed to record pipeline failure",
			logging.Error(pubErr),
			logging.String(logging.FieldEventType, "status_persist_failed"),
		)
	}
	details := services.Details(err)
	logging.WithContext(ctx, c.logger).Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failed"),
		logging.String("error_kind", details.Kind),
		logging.String(logging.FieldErrorHint, details.Hint),
		logging.Error(err),
	)
	return err
}

func (c *Controller) finish(ctx context.Context, r *run) error {
	end := c.now()
	stage := videostatus.StageAwaitingNextAction
	progress := 100
	message := "ready for upload"
	cleared := ""
	patch := videostatus.Patch{Stage: &stage, Progress: &progress, Message: &message, Error: &cleared, EndTime: &end}
	if _, err := c.events.Publish(ctx, r.videoID, r.taskID, patch); err != nil {
		return fmt.Errorf("publish terminal status: %w", err)
	}
	r.logger.Info("pipeline finished",
		logging.String(logging.FieldEventType, "pipeline_ready"),
		logging.String("next_action", "upload"),
	)
	return nil
}

// HealthCheck reports readiness of the collaborators that support it.
func (c *Controller) HealthCheck(ctx context.Context) []Health {
	named := []struct {
		name string
		impl any
	}{
		{"transcriber", c.transcriber},
		{"translator", c.translator},
		{"synthesizer", c.synthesizer},
	}
	out := make([]Health, 0, len(named))
	for _, n := range named {
		if checker, ok := n.impl.(HealthChecker); ok {
			out = append(out, checker.HealthCheck(ctx))
			continue
		}
		out = append(out, Healthy(n.name))
	}
	return out
}
