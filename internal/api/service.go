package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/videostatus"
	"redub/internal/workflow"
)

// StatusReader fetches per-video pipeline status.
type StatusReader interface {
	Get(ctx context.Context, videoID string) (*videostatus.Status, error)
}

// Service implements the task-queue operations on top of the workflow
// manager and its store.
type Service struct {
	manager  *workflow.Manager
	store    *queue.Store
	statuses StatusReader
	videos   *artifacts.Store
	logger   *slog.Logger
}

// NewService wires a Service. manager, statuses and videos are required.
func NewService(manager *workflow.Manager, statuses StatusReader, videos *artifacts.Store, logger *slog.Logger) (*Service, error) {
	if manager == nil || manager.Store() == nil {
		return nil, fmt.Errorf("api: workflow manager is required")
	}
	if statuses == nil {
		return nil, fmt.Errorf("api: status reader is required")
	}
	if videos == nil {
		return nil, fmt.Errorf("api: artifact store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		manager:  manager,
		store:    manager.Store(),
		statuses: statuses,
		videos:   videos,
		logger:   logging.NewComponentLogger(logger, "api"),
	}, nil
}

// GetTask returns the task with id and kind.
func (s *Service) GetTask(ctx context.Context, id string, kind queue.Kind) (*queue.Task, error) {
	task, err := s.store.Get(ctx, strings.TrimSpace(id), kind)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, notFound("get task", fmt.Sprintf("%s task %s not found", kind, id))
	}
	return task, nil
}

// FindTask returns the task with id regardless of kind.
func (s *Service) FindTask(ctx context.Context, id string) (*queue.Task, error) {
	task, err := s.store.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, notFound("get task", fmt.Sprintf("task %s not found", id))
	}
	return task, nil
}

// ListTasks returns tasks of kind, newest first. An empty kind lists every
// task in queue order.
func (s *Service) ListTasks(ctx context.Context, kind queue.Kind) ([]*queue.Task, error) {
	if kind == "" {
		return s.store.List(ctx)
	}
	if _, ok := queue.ParseKind(string(kind)); !ok {
		return nil, invalid("list tasks", fmt.Sprintf("unknown task kind %q", kind))
	}
	return s.store.ListAll(ctx, kind)
}

// ListTasksForVideo returns every task touching videoID, newest first.
func (s *Service) ListTasksForVideo(ctx context.Context, videoID string) ([]*queue.Task, error) {
	videoID, err := cleanVideoID("list tasks", videoID)
	if err != nil {
		return nil, err
	}
	return s.store.ListForVideo(ctx, videoID)
}

// DeleteTask removes a task of any status.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	removed, err := s.store.Remove(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !removed {
		return notFound("delete task", fmt.Sprintf("task %s not found", id))
	}
	s.logger.Info("task removed",
		logging.String(logging.FieldTaskID, id),
		logging.String(logging.FieldEventType, "task_removed"),
	)
	return nil
}

// RemoveTasks removes ids one by one so each reports its own outcome.
func (s *Service) RemoveTasks(ctx context.Context, ids []string) (RemoveTasksResult, error) {
	result := RemoveTasksResult{Tasks: make([]RemoveResult, 0, len(ids))}
	for _, id := range ids {
		removed, err := s.store.Remove(ctx, strings.TrimSpace(id))
		if err != nil {
			return RemoveTasksResult{}, err
		}
		if removed {
			result.RemovedCount++
			result.Tasks = append(result.Tasks, RemoveResult{ID: id, Outcome: RemoveOutcomeRemoved})
			continue
		}
		result.Tasks = append(result.Tasks, RemoveResult{ID: id, Outcome: RemoveOutcomeNotFound})
	}
	return result, nil
}

// VideoStatus returns the pipeline status of videoID.
func (s *Service) VideoStatus(ctx context.Context, videoID string) (*videostatus.Status, error) {
	videoID, err := cleanVideoID("video status", videoID)
	if err != nil {
		return nil, err
	}
	status, err := s.statuses.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, notFound("video status", fmt.Sprintf("no status for video %s", videoID))
	}
	return status, nil
}

// ListVideos returns the downloaded videos, most recent first, each with
// its pipeline status when one was recorded.
func (s *Service) ListVideos(ctx context.Context) ([]Video, error) {
	records, err := s.videos.ListVideos()
	if err != nil {
		return nil, err
	}
	out := make([]Video, 0, len(records))
	for _, rec := range records {
		status, err := s.statuses.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Video{VideoRecord: *rec, Status: status})
	}
	return out, nil
}

// GetVideo returns the catalog entry of videoID.
func (s *Service) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	videoID, err := cleanVideoID("get video", videoID)
	if err != nil {
		return nil, err
	}
	rec, err := s.videos.LoadVideo(videoID)
	if err != nil {
		return nil, err
	}
	status, err := s.statuses.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if rec == nil && status == nil {
		return nil, notFound("get video", fmt.Sprintf("video %s not found", videoID))
	}
	video := &Video{Status: status}
	if rec != nil {
		video.VideoRecord = *rec
	}
	video.ID = videoID
	return video, nil
}

// Cleanup purges finished tasks older than maxAge. A non-positive maxAge
// uses the configured retention.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.manager.Cleanup(ctx, maxAge)
}

// Status returns the scheduler snapshot.
func (s *Service) Status(ctx context.Context) workflow.StatusSummary {
	return s.manager.Status(ctx)
}

// cleanVideoID trims id and rejects values that cannot name a staging
// directory.
func cleanVideoID(op, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid(op, "video id is required")
	}
	if !artifacts.ValidVideoID(id) {
		return "", invalid(op, fmt.Sprintf("invalid video id %q", id))
	}
	return id, nil
}

func invalid(op, msg string) error {
	return services.Wrap(services.ErrValidation, "", op, msg, nil)
}

func notFound(op, msg string) error {
	return services.Wrap(services.ErrNotFound, "", op, msg, nil)
}
