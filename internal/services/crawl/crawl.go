// Package crawl implements the crawl task processor. It downloads a shared
// video with an external downloader (yt-dlp by default) into the staging
// directory and stamps the resolved video id on the task.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/fileutil"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/services/command"
	"redub/internal/videostatus"
)

// TaskStore is the subset of the queue store used by the processor.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*queue.Task, error)
	Update(ctx context.Context, id string, kind queue.Kind, patch queue.Patch) (bool, error)
}

// StatusPublisher persists and fans out a status patch.
type StatusPublisher interface {
	Publish(ctx context.Context, videoID, taskID string, patch videostatus.Patch) (*videostatus.Status, error)
}

// Option configures the Processor.
type Option func(*Processor)

// WithRunner injects the command runner (primarily for tests).
func WithRunner(r command.Runner) Option {
	return func(p *Processor) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Processor runs crawl tasks.
type Processor struct {
	tasks     TaskStore
	events    StatusPublisher
	artifacts *artifacts.Store
	binary    string
	extraArgs []string
	timeout   time.Duration
	runner    command.Runner
	logger    *slog.Logger
}

// New builds a crawl Processor.
func New(cfg *config.Config, tasks TaskStore, events StatusPublisher, store *artifacts.Store, opts ...Option) *Processor {
	p := &Processor{
		tasks:     tasks,
		events:    events,
		artifacts: store,
		binary:    cfg.Crawl.Binary,
		extraArgs: append([]string(nil), cfg.Crawl.Args...),
		timeout:   time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
		runner:    command.Exec{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "crawler")
	return p
}

// download is the state of one crawl run.
type download struct {
	taskID      string
	videoID     string
	announced   bool
	lastPercent int
	startedAt   time.Time
	info        *artifacts.VideoRecord
}

// Process downloads the video referenced by the crawl task.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "", "load task", fmt.Sprintf("task %s not found", taskID), nil)
	}
	var payload queue.CrawlPayload
	if err := task.DecodePayload(&payload); err != nil {
		return services.Wrap(services.ErrValidation, "", "decode payload", "invalid crawl payload", err)
	}
	url := strings.TrimSpace(payload.URL)
	if url == "" {
		return services.Wrap(services.ErrValidation, "", "decode payload", "crawl task has no url", nil)
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	dl := &download{taskID: task.ID, videoID: strings.TrimSpace(task.VideoID), lastPercent: -1, startedAt: time.Now()}
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("download started",
		logging.String(logging.FieldEventType, "download_start"),
		logging.String("url", url),
	)

	if err := os.MkdirAll(p.artifacts.Root(), 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	args := p.buildArgs(url, payload.Options)
	runErr := p.runner.Run(runCtx, p.binary, args, func(line string) { p.handleLine(runCtx, dl, line) })
	if runErr != nil {
		return p.fail(ctx, dl, services.Wrap(services.ErrExternalTool, "downloading", "download", "", runErr))
	}
	if dl.videoID == "" {
		return p.fail(ctx, dl, services.Wrap(services.ErrExternalTool, "downloading", "download", fmt.Sprintf("%s did not report a video id", p.binary), nil))
	}
	media := p.artifacts.MediaPath(dl.videoID)
	if !fileutil.Exists(media) {
		return p.fail(ctx, dl, services.Wrap(services.ErrExternalTool, "downloading", "download", fmt.Sprintf("downloaded media not found at %s", media), nil))
	}

	videoID := dl.videoID
	if _, err := p.tasks.Update(ctx, task.ID, queue.KindCrawl, queue.Patch{VideoID: &videoID}); err != nil {
		return fmt.Errorf("stamp video id: %w", err)
	}
	if err := p.saveRecord(dl, url); err != nil {
		return p.fail(ctx, dl, err)
	}
	if dir := strings.TrimSpace(payload.Options.OutputDir); dir != "" {
		if err := p.exportCopy(media, dir, videoID); err != nil {
			return p.fail(ctx, dl, err)
		}
	}

	end := time.Now()
	patch := videostatus.StagePatch(videostatus.StageIdle, 0, "download complete")
	patch.EndTime = &end
	if _, err := p.events.Publish(ctx, videoID, task.ID, patch); err != nil {
		return fmt.Errorf("publish download status: %w", err)
	}
	logger.Info("download complete",
		logging.String(logging.FieldEventType, "download_complete"),
		logging.String(logging.FieldVideoID, videoID),
		logging.String("media", media),
		logging.Duration("duration", time.Since(dl.startedAt)),
	)
	return nil
}

func (p *Processor) buildArgs(url string, opts queue.CrawlOptions) []string {
	template := filepath.Join(p.artifacts.Root(), "%(id)s", "video.%(ext)s")
	args := append([]string(nil), p.extraArgs...)
	args = append(args,
		"--newline",
		"--progress",
		"--no-playlist",
		"--merge-output-format", "mp4",
		"--remux-video", "mp4",
		"-o", template,
		"--print", "before_dl:" + idPrefix + "%(id)s",
		"--print", "before_dl:" + metaPrefix + metaTemplate,
		"--no-simulate",
	)
	if opts.DownloadCover {
		cover := filepath.Join(p.artifacts.Root(), "%(id)s", "cover.%(ext)s")
		args = append(args, "--write-thumbnail", "--convert-thumbnails", "jpg", "-o", "thumbnail:"+cover)
	}
	return append(args, url)
}

func (p *Processor) handleLine(ctx context.Context, dl *download, line string) {
	if info, ok := parseInfo(line); ok {
		dl.info = info
		return
	}
	if id, ok := parseVideoID(line); ok {
		if !dl.announced || dl.videoID != id {
			dl.videoID = id
			dl.announced = true
			p.begin(ctx, dl)
		}
		return
	}
	percent, ok := parsePercent(line)
	if !ok || dl.videoID == "" {
		return
	}
	bucket := percent / 10 * 10
	if bucket <= dl.lastPercent {
		return
	}
	dl.lastPercent = bucket
	msg := fmt.Sprintf("downloading %d%%", bucket)
	if _, err := p.events.Publish(ctx, dl.videoID, dl.taskID, videostatus.Patch{Message: &msg}); err != nil {
		p.logger.Debug("download progress not recorded", logging.Error(err))
	}
}

// begin resets the video record for a fresh download; stage outputs from an
// earlier copy of the media are no longer valid.
func (p *Processor) begin(ctx context.Context, dl *download) {
	start := time.Now()
	cleared := ""
	patch := videostatus.StagePatch(videostatus.StageDownloading, 0, "download started")
	patch.Error = &cleared
	patch.StartTime = &start
	patch.ClearEndTime = true
	if _, err := p.events.Publish(ctx, dl.videoID, dl.taskID, patch); err != nil {
		logging.WarnWithContext(p.logger, "could not record download start", "status_persist_failed",
			logging.String(logging.FieldVideoID, dl.videoID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the queue database"),
			logging.String(logging.FieldImpact, "video status lags behind the download"),
		)
	}
}

func (p *Processor) fail(ctx context.Context, dl *download, err error) error {
	if dl.videoID != "" {
		message := services.Message(err)
		caption := "download failed"
		stage := videostatus.StageError
		end := time.Now()
		patch := videostatus.Patch{Stage: &stage, Message: &caption, Error: &message, EndTime: &end}
		if _, pubErr := p.events.Publish(context.WithoutCancel(ctx), dl.videoID, dl.taskID, patch); pubErr != nil {
			p.logger.Error("failed to record download failure",
				logging.Error(pubErr),
				logging.String(logging.FieldEventType, "status_persist_failed"),
			)
		}
	}
	return err
}

// saveRecord catalogs the downloaded video. The title falls back to the
// video id when the source reported none.
func (p *Processor) saveRecord(dl *download, shareURL string) error {
	rec := &artifacts.VideoRecord{}
	if dl.info != nil && (dl.info.ID == "" || dl.info.ID == dl.videoID) {
		*rec = *dl.info
	}
	rec.ID = dl.videoID
	if rec.Title == "" {
		rec.Title = dl.videoID
	}
	rec.ShareURL = shareURL
	rec.HasCover = fileutil.Exists(p.artifacts.Path(dl.videoID, artifacts.CoverFile))
	rec.DownloadedAt = time.Now().UTC()
	if err := p.artifacts.SaveVideo(rec); err != nil {
		return fmt.Errorf("catalog video: %w", err)
	}
	return nil
}

func (p *Processor) exportCopy(media, dir, videoID string) error {
	expanded, err := config.ExpandPath(dir)
	if err != nil {
		return services.Wrap(services.ErrValidation, "downloading", "export", fmt.Sprintf("invalid output dir %q", dir), err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	dest := filepath.Join(expanded, videoID+filepath.Ext(media))
	if err := fileutil.CopyFileVerified(media, dest); err != nil {
		return fmt.Errorf("copy media to output dir: %w", err)
	}
	cover := p.artifacts.Path(videoID, artifacts.CoverFile)
	if fileutil.Exists(cover) {
		if err := fileutil.CopyFileVerified(cover, filepath.Join(expanded, videoID+".jpg")); err != nil {
			return fmt.Errorf("copy cover to output dir: %w", err)
		}
	}
	return nil
}
