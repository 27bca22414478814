package api

import (
	"context"
	"fmt"
	"strings"

	"redub/internal/logging"
	"redub/internal/pipeline"
	"redub/internal/queue"
	"redub/internal/services/upload"
	"redub/internal/workflow"
)

// CreateCrawlTask enqueues a download of a share link.
func (s *Service) CreateCrawlTask(ctx context.Context, rawURL string, opts queue.CrawlOptions) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", invalid("create crawl task", "url is required")
	}
	if !IsSupportedShareURL(rawURL) {
		return "", invalid("create crawl task", fmt.Sprintf("unsupported share url %q", rawURL))
	}
	return s.manager.AddTask(ctx, workflow.NewTask{
		Kind:    queue.KindCrawl,
		Payload: queue.CrawlPayload{URL: rawURL, Options: opts},
	})
}

// CreateOrContinueProcessTask returns the active process task for videoID
// when there is one. Otherwise a failed process task, or any finished one
// when a retry step is requested, is requeued in place. A new task is
// enqueued only when neither applies. Unknown videos are rejected.
func (s *Service) CreateOrContinueProcessTask(ctx context.Context, videoID string, opts queue.ProcessOptions) (string, error) {
	videoID, err := cleanVideoID("create process task", videoID)
	if err != nil {
		return "", err
	}
	if err := validateProcessOptions(opts); err != nil {
		return "", err
	}

	active, err := s.store.FindIncompleteProcess(ctx, videoID)
	if err != nil {
		return "", err
	}
	if active != nil {
		return active.ID, nil
	}
	if err := s.requireVideo(ctx, "create process task", videoID); err != nil {
		return "", err
	}

	payload := queue.ProcessPayload{VideoID: videoID, Options: opts}
	latest, err := s.store.FindLatestProcess(ctx, videoID)
	if err != nil {
		return "", err
	}
	retry := strings.TrimSpace(opts.RetryFromStep) != ""
	if latest != nil && !latest.IsActive() && (retry || latest.Status == queue.StatusFailed) {
		if err := s.manager.Requeue(ctx, latest, payload); err != nil {
			return "", err
		}
		s.logger.Info("process task retried",
			logging.String(logging.FieldTaskID, latest.ID),
			logging.String(logging.FieldVideoID, videoID),
			logging.String("retry_from", opts.RetryFromStep),
			logging.String("previous_status", string(latest.Status)),
			logging.String(logging.FieldEventType, "task_retry"),
		)
		return latest.ID, nil
	}

	return s.manager.AddTask(ctx, workflow.NewTask{
		Kind:    queue.KindProcess,
		VideoID: videoID,
		Payload: payload,
	})
}

// CreateUploadTask enqueues a republish of a processed video. Title and
// description default to the catalog record of the download.
func (s *Service) CreateUploadTask(ctx context.Context, videoID string, metadata queue.UploadMetadata) (string, error) {
	videoID, err := cleanVideoID("create upload task", videoID)
	if err != nil {
		return "", err
	}
	status, err := s.statuses.Get(ctx, videoID)
	if err != nil {
		return "", err
	}
	if status == nil {
		return "", notFound("create upload task", fmt.Sprintf("video %s not found", videoID))
	}

	metadata.Title = strings.TrimSpace(metadata.Title)
	metadata.Description = strings.TrimSpace(metadata.Description)
	if metadata.Title == "" || metadata.Description == "" {
		rec, err := s.videos.LoadVideo(videoID)
		if err != nil {
			return "", err
		}
		if rec != nil {
			if metadata.Title == "" && rec.Title != rec.ID {
				metadata.Title = rec.Title
			}
			if metadata.Description == "" {
				metadata.Description = rec.Description
			}
		}
	}
	if metadata.Title == "" {
		return "", invalid("create upload task", "title is required")
	}
	if !upload.Ready(status) {
		return "", invalid("create upload task", fmt.Sprintf("video %s is not ready for upload (stage %s)", videoID, status.Stage))
	}

	return s.manager.AddTask(ctx, workflow.NewTask{
		Kind:    queue.KindUpload,
		VideoID: videoID,
		Payload: queue.UploadPayload{VideoID: videoID, Metadata: metadata},
	})
}

// requireVideo reports ErrNotFound unless videoID was downloaded or has a
// recorded status.
func (s *Service) requireVideo(ctx context.Context, op, videoID string) error {
	if s.videos.HasVideo(videoID) {
		return nil
	}
	status, err := s.statuses.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if status == nil {
		return notFound(op, fmt.Sprintf("video %s not found", videoID))
	}
	return nil
}

func validateProcessOptions(opts queue.ProcessOptions) error {
	if step := strings.TrimSpace(opts.RetryFromStep); step != "" {
		if _, ok := pipeline.ParseStage(step); !ok {
			return invalid("create process task", fmt.Sprintf("unknown retry step %q", step))
		}
	}
	switch strings.ToLower(strings.TrimSpace(opts.TranslationProvider)) {
	case "", "openai", "deepl":
	default:
		return invalid("create process task", fmt.Sprintf("unsupported translation provider %q", opts.TranslationProvider))
	}
	switch strings.ToLower(strings.TrimSpace(opts.SynthesisProvider)) {
	case "", "elevenlabs", "edge-tts":
	default:
		return invalid("create process task", fmt.Sprintf("unsupported synthesis provider %q", opts.SynthesisProvider))
	}
	if opts.Speed < 0 {
		return invalid("create process task", "speed must not be negative")
	}
	return nil
}
