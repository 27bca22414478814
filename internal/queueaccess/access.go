// Package queueaccess gives CLI commands one view of the task queue whether
// the daemon is reachable over IPC or the database must be opened directly.
package queueaccess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"redub/internal/api"
	"redub/internal/ipc"
	"redub/internal/queue"
	"redub/internal/videostatus"
)

// Access provides read and maintenance operations on the task queue.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, kind, videoID string) ([]api.Task, error)
	Show(ctx context.Context, id string) (*api.Task, error)
	Remove(ctx context.Context, ids []string) (api.RemoveTasksResult, error)
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
	VideoStatus(ctx context.Context, videoID string) (*videostatus.Status, error)
	DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct database access.
// defaultMaxAge applies to Cleanup calls without an explicit age.
func NewStoreAccess(store *queue.Store, statuses *videostatus.Store, defaultMaxAge time.Duration) Access {
	return &storeAccess{store: store, statuses: statuses, defaultMaxAge: defaultMaxAge, now: time.Now}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.Workflow.QueueStats, nil
}

func (a *ipcAccess) List(_ context.Context, kind, videoID string) ([]api.Task, error) {
	resp, err := a.client.TaskList(ipc.TaskListRequest{Kind: kind, VideoID: videoID})
	if err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (a *ipcAccess) Show(_ context.Context, id string) (*api.Task, error) {
	resp, err := a.client.TaskShow(id, "")
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Task, nil
}

func (a *ipcAccess) Remove(_ context.Context, ids []string) (api.RemoveTasksResult, error) {
	resp, err := a.client.TaskRemove(ids)
	if err != nil {
		return api.RemoveTasksResult{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) Cleanup(_ context.Context, maxAge time.Duration) (int64, error) {
	resp, err := a.client.QueueCleanup(maxAge)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) VideoStatus(_ context.Context, videoID string) (*videostatus.Status, error) {
	resp, err := a.client.VideoStatus(videoID)
	if err != nil {
		if strings.Contains(err.Error(), "no status") {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Status, nil
}

func (a *ipcAccess) DatabaseHealth(context.Context) (queue.DatabaseHealth, error) {
	resp, err := a.client.DatabaseHealth()
	if err != nil {
		return queue.DatabaseHealth{}, err
	}
	return queue.DatabaseHealth{
		DBPath:           resp.DBPath,
		DatabaseExists:   resp.DatabaseExists,
		DatabaseReadable: resp.DatabaseReadable,
		SchemaVersion:    resp.SchemaVersion,
		TableExists:      resp.TableExists,
		IntegrityCheck:   resp.IntegrityCheck,
		TotalTasks:       resp.TotalTasks,
		Error:            resp.Error,
	}, nil
}

type storeAccess struct {
	store         *queue.Store
	statuses      *videostatus.Store
	defaultMaxAge time.Duration
	now           func() time.Time
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeQueueStats(stats), nil
}

func (a *storeAccess) List(ctx context.Context, kind, videoID string) ([]api.Task, error) {
	var (
		tasks []*queue.Task
		err   error
	)
	switch {
	case strings.TrimSpace(videoID) != "":
		tasks, err = a.store.ListForVideo(ctx, strings.TrimSpace(videoID))
	case strings.TrimSpace(kind) != "":
		parsed, ok := queue.ParseKind(kind)
		if !ok {
			return nil, fmt.Errorf("unknown task kind %q", kind)
		}
		tasks, err = a.store.ListAll(ctx, parsed)
	default:
		tasks, err = a.store.List(ctx)
	}
	if err != nil {
		return nil, err
	}
	return api.FromTasks(tasks), nil
}

func (a *storeAccess) Show(ctx context.Context, id string) (*api.Task, error) {
	task, err := a.store.GetByID(ctx, strings.TrimSpace(id))
	if err != nil || task == nil {
		return nil, err
	}
	dto := api.FromTask(task)
	return &dto, nil
}

func (a *storeAccess) Remove(ctx context.Context, ids []string) (api.RemoveTasksResult, error) {
	result := api.RemoveTasksResult{Tasks: make([]api.RemoveResult, 0, len(ids))}
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, strings.TrimSpace(id))
		if err != nil {
			return result, err
		}
		outcome := api.RemoveOutcomeNotFound
		if removed {
			outcome = api.RemoveOutcomeRemoved
			result.RemovedCount++
		}
		result.Tasks = append(result.Tasks, api.RemoveResult{ID: id, Outcome: outcome})
	}
	return result, nil
}

func (a *storeAccess) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		maxAge = a.defaultMaxAge
	}
	if maxAge <= 0 {
		return 0, errors.New("cleanup requires a positive max age")
	}
	return a.store.Cleanup(ctx, maxAge, a.now())
}

func (a *storeAccess) VideoStatus(ctx context.Context, videoID string) (*videostatus.Status, error) {
	if a.statuses == nil {
		return nil, errors.New("video status store unavailable")
	}
	return a.statuses.Get(ctx, strings.TrimSpace(videoID))
}

func (a *storeAccess) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return a.store.CheckHealth(ctx)
}
