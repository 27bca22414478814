// Package upload implements the upload task processor, which republishes a
// video that finished the pipeline.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/fileutil"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/videostatus"
)

// TaskStore is the subset of the queue store used by the processor.
type TaskStore interface {
	GetByID(ctx context.Context, id string) (*queue.Task, error)
	Update(ctx context.Context, id string, kind queue.Kind, patch queue.Patch) (bool, error)
}

// StatusReader reads the persisted video status.
type StatusReader interface {
	Get(ctx context.Context, videoID string) (*videostatus.Status, error)
}

// StatusPublisher persists and fans out a status patch.
type StatusPublisher interface {
	Publish(ctx context.Context, videoID, taskID string, patch videostatus.Patch) (*videostatus.Status, error)
}

// Options wire a Processor.
type Options struct {
	Tasks     TaskStore
	Statuses  StatusReader
	Events    StatusPublisher
	Artifacts *artifacts.Store
	Uploader  Uploader
	Logger    *slog.Logger
}

// Processor runs upload tasks.
type Processor struct {
	tasks     TaskStore
	statuses  StatusReader
	events    StatusPublisher
	artifacts *artifacts.Store
	uploader  Uploader
	logger    *slog.Logger
}

// NewProcessor builds an upload Processor.
func NewProcessor(opts Options) (*Processor, error) {
	if opts.Tasks == nil || opts.Statuses == nil || opts.Events == nil || opts.Artifacts == nil || opts.Uploader == nil {
		return nil, errors.New("upload: tasks, statuses, events, artifacts and uploader required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		tasks:     opts.Tasks,
		statuses:  opts.Statuses,
		events:    opts.Events,
		artifacts: opts.Artifacts,
		uploader:  opts.Uploader,
		logger:    logging.NewComponentLogger(logger, "uploader"),
	}, nil
}

// Process uploads the video named by the task and marks it completed.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil {
		return services.Wrap(services.ErrNotFound, "", "load task", fmt.Sprintf("task %s not found", taskID), nil)
	}
	var payload queue.UploadPayload
	if err := task.DecodePayload(&payload); err != nil {
		return services.Wrap(services.ErrValidation, "", "decode payload", "invalid upload payload", err)
	}
	videoID := strings.TrimSpace(payload.VideoID)
	if videoID == "" {
		videoID = strings.TrimSpace(task.VideoID)
	}
	if videoID == "" {
		return services.Wrap(services.ErrValidation, "", "decode payload", "upload task has no video id", nil)
	}
	meta := NormalizeMetadata(payload.Metadata)
	if meta.Title == "" {
		return services.Wrap(services.ErrValidation, "", "decode payload", "upload title is required", nil)
	}

	status, err := p.statuses.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("read video status: %w", err)
	}
	if !Ready(status) {
		stage := "unknown"
		if status != nil {
			stage = string(status.Stage)
		}
		return services.Wrap(services.ErrValidation, "", "check status",
			fmt.Sprintf("video %s is not ready for upload (stage %s)", videoID, stage), nil)
	}
	media := p.artifacts.MediaPath(videoID)
	if !fileutil.Exists(media) {
		return services.Wrap(services.ErrMissingArtifact, "uploading", "locate media", fmt.Sprintf("media missing for video %s", videoID), nil)
	}

	logger := logging.WithContext(services.WithVideoID(ctx, videoID), p.logger)
	started := time.Now()
	if _, err := p.events.Publish(ctx, videoID, task.ID, videostatus.Patch{
		Stage:   stagePtr(videostatus.StageUploading),
		Message: strPtr("uploading"),
	}); err != nil {
		return fmt.Errorf("publish upload status: %w", err)
	}
	logger.Info("upload started",
		logging.String(logging.FieldEventType, "upload_start"),
		logging.String("title", meta.Title),
	)

	remoteID, err := p.uploader.Upload(ctx, media, meta)
	if err != nil {
		p.recordFailure(ctx, videoID, task.ID, status.Stage, err)
		return err
	}

	payload.Metadata = meta
	payload.RemoteID = remoteID
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode upload payload: %w", err)
	}
	if _, err := p.tasks.Update(ctx, task.ID, queue.KindUpload, queue.Patch{Payload: encoded}); err != nil {
		return fmt.Errorf("record remote id: %w", err)
	}

	end := time.Now()
	cleared := ""
	done := videostatus.StagePatch(videostatus.StageCompleted, 100, fmt.Sprintf("uploaded as %s", remoteID))
	done.Error = &cleared
	done.EndTime = &end
	if _, err := p.events.Publish(ctx, videoID, task.ID, done); err != nil {
		return fmt.Errorf("publish upload status: %w", err)
	}
	logger.Info("upload complete",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("remote_id", remoteID),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

// recordFailure puts the video back in the stage it was uploaded from so a
// later upload task is accepted. The failure stays visible in Error.
func (p *Processor) recordFailure(ctx context.Context, videoID, taskID string, ready videostatus.Stage, cause error) {
	message := services.Message(cause)
	end := time.Now()
	patch := videostatus.Patch{
		Stage:   stagePtr(ready),
		Message: strPtr("upload failed"),
		Error:   &message,
		EndTime: &end,
	}
	if _, err := p.events.Publish(context.WithoutCancel(ctx), videoID, taskID, patch); err != nil {
		p.logger.Error("failed to record upload failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_persist_failed"),
		)
	}
}

// Ready reports whether a video may be uploaded.
func Ready(status *videostatus.Status) bool {
	if status == nil {
		return false
	}
	switch status.Stage {
	case videostatus.StageAwaitingNextAction, videostatus.StageCompleted:
		return true
	default:
		return false
	}
}

func stagePtr(s videostatus.Stage) *videostatus.Stage { return &s }

func strPtr(s string) *string { return &s }
