package api_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"redub/internal/api"
	"redub/internal/artifacts"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
	"redub/internal/workflow"
)

type harness struct {
	svc      *api.Service
	store    *queue.Store
	statuses *videostatus.Store
	arts     *artifacts.Store
}

func newHarness(t *testing.T) harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	statuses := testsupport.MustOpenStatuses(t, store)
	mgr := workflow.NewManager(store, workflow.NewRegistry(), workflow.Options{Config: cfg})
	arts := artifacts.NewStore(cfg.Paths.StagingDir)
	svc, err := api.NewService(mgr, statuses, arts, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return harness{svc: svc, store: store, statuses: statuses, arts: arts}
}

func (h harness) addVideo(t *testing.T, videoID string) {
	t.Helper()
	testsupport.WriteFile(t, h.arts.MediaPath(videoID), 16)
}

func (h harness) setStage(t *testing.T, videoID string, stage videostatus.Stage) {
	t.Helper()
	if _, err := h.statuses.Update(context.Background(), videoID, videostatus.StagePatch(stage, 100, "")); err != nil {
		t.Fatalf("status update: %v", err)
	}
}

func TestCreateCrawlTaskValidatesURL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, bad := range []string{"", "   ", "https://example.com/video/1", "ftp://v.douyin.com/abc"} {
		if _, err := h.svc.CreateCrawlTask(ctx, bad, queue.CrawlOptions{}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %q, got %v", bad, err)
		}
	}
	tasks, err := h.svc.ListTasks(ctx, queue.KindCrawl)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks after rejected input, got %d", len(tasks))
	}

	id, err := h.svc.CreateCrawlTask(ctx, "https://v.douyin.com/iRNBho6u/", queue.CrawlOptions{DownloadCover: true})
	if err != nil {
		t.Fatalf("CreateCrawlTask: %v", err)
	}
	task, err := h.svc.GetTask(ctx, id, queue.KindCrawl)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	var payload queue.CrawlPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.URL != "https://v.douyin.com/iRNBho6u/" || !payload.Options.DownloadCover {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCreateProcessTaskDeduplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addVideo(t, "v1")

	first, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", queue.ProcessOptions{TargetLanguage: "english"})
	if err != nil {
		t.Fatalf("CreateOrContinueProcessTask: %v", err)
	}
	second, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", queue.ProcessOptions{RetryFromStep: "translate"})
	if err != nil {
		t.Fatalf("CreateOrContinueProcessTask repeat: %v", err)
	}
	if first != second {
		t.Fatalf("expected same id, got %s and %s", first, second)
	}
	tasks, err := h.svc.ListTasksForVideo(ctx, "v1")
	if err != nil {
		t.Fatalf("ListTasksForVideo: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %d", len(tasks))
	}
}

func TestCreateProcessTaskRetryMutatesFinishedTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addVideo(t, "v1")
	failed := testsupport.AddTask(t, h.store, &queue.Task{
		Kind:     queue.KindProcess,
		VideoID:  "v1",
		Status:   queue.StatusFailed,
		Progress: 55,
		Error:    "network timeout",
	})

	id, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", queue.ProcessOptions{RetryFromStep: "translating"})
	if err != nil {
		t.Fatalf("CreateOrContinueProcessTask: %v", err)
	}
	if id != failed.ID {
		t.Fatalf("expected retry to reuse %s, got %s", failed.ID, id)
	}
	task, err := h.svc.GetTask(ctx, id, queue.KindProcess)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != queue.StatusPending || task.Progress != 0 || task.Error != "" {
		t.Fatalf("unexpected retried task: %+v", task)
	}
	var payload queue.ProcessPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Options.RetryFromStep != "translating" || payload.VideoID != "v1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCreateProcessTaskAfterCompletionCreatesNewTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addVideo(t, "v1")
	done := testsupport.AddTask(t, h.store, &queue.Task{Kind: queue.KindProcess, VideoID: "v1", Status: queue.StatusCompleted, Progress: 100})

	id, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", queue.ProcessOptions{})
	if err != nil {
		t.Fatalf("CreateOrContinueProcessTask: %v", err)
	}
	if id == done.ID {
		t.Fatal("expected a new task when the previous run completed and no retry is requested")
	}
}

func TestCreateProcessTaskResumesFailedTaskInPlace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.setStage(t, "v1", videostatus.StageError)
	failed := testsupport.AddTask(t, h.store, &queue.Task{
		Kind:     queue.KindProcess,
		VideoID:  "v1",
		Status:   queue.StatusFailed,
		Progress: 55,
		Error:    "synthesis provider unavailable",
	})

	id, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", queue.ProcessOptions{})
	if err != nil {
		t.Fatalf("CreateOrContinueProcessTask: %v", err)
	}
	if id != failed.ID {
		t.Fatalf("expected failed task %s to be resumed, got %s", failed.ID, id)
	}
	tasks, err := h.svc.ListTasksForVideo(ctx, "v1")
	if err != nil {
		t.Fatalf("ListTasksForVideo: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected the store to keep one process task, got %d", len(tasks))
	}
	if tasks[0].Status != queue.StatusPending || tasks[0].Progress != 0 || tasks[0].Error != "" {
		t.Fatalf("unexpected resumed task: %+v", tasks[0])
	}
}

func TestCreateTasksRejectUnknownVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.CreateOrContinueProcessTask(ctx, "no-such-video", queue.ProcessOptions{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for process, got %v", err)
	}
	if _, err := h.svc.CreateUploadTask(ctx, "no-such-video", queue.UploadMetadata{Title: "Dubbed"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for upload, got %v", err)
	}
	tasks, err := h.svc.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected no tasks after rejected requests, got %d", len(tasks))
	}
}

func TestVideoIDsCannotEscapeStaging(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"../x", "a/b", `..\x`, ".."} {
		if _, err := h.svc.CreateOrContinueProcessTask(ctx, id, queue.ProcessOptions{}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("process %q: expected validation error, got %v", id, err)
		}
		if _, err := h.svc.CreateUploadTask(ctx, id, queue.UploadMetadata{Title: "t"}); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("upload %q: expected validation error, got %v", id, err)
		}
		if _, err := h.svc.GetVideo(ctx, id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("get video %q: expected validation error, got %v", id, err)
		}
		if _, err := h.svc.VideoStatus(ctx, id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("video status %q: expected validation error, got %v", id, err)
		}
	}
}

func TestCreateProcessTaskRejectsBadOptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []queue.ProcessOptions{
		{RetryFromStep: "mastering"},
		{TranslationProvider: "babelfish"},
		{SynthesisProvider: "espeak"},
	}
	for _, opts := range cases {
		if _, err := h.svc.CreateOrContinueProcessTask(ctx, "v1", opts); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", opts, err)
		}
	}
	if _, err := h.svc.CreateOrContinueProcessTask(ctx, " ", queue.ProcessOptions{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank video, got %v", err)
	}
}

func TestCreateUploadTaskRequiresTitleAndReadyVideo(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.setStage(t, "v1", videostatus.StageSynthesizing)
	if _, err := h.svc.CreateUploadTask(ctx, "v1", queue.UploadMetadata{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
	if _, err := h.svc.CreateUploadTask(ctx, "v1", queue.UploadMetadata{Title: "Dubbed"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unfinished video, got %v", err)
	}

	h.setStage(t, "v1", videostatus.StageAwaitingNextAction)
	id, err := h.svc.CreateUploadTask(ctx, "v1", queue.UploadMetadata{Title: "  Dubbed  ", Tags: []string{"dub"}})
	if err != nil {
		t.Fatalf("CreateUploadTask: %v", err)
	}
	task, err := h.svc.GetTask(ctx, id, queue.KindUpload)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	var payload queue.UploadPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Metadata.Title != "Dubbed" || task.VideoID != "v1" {
		t.Fatalf("unexpected upload task: %+v %+v", task, payload)
	}
}

func TestCreateUploadTaskDefaultsFromCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.arts.SaveVideo(&artifacts.VideoRecord{ID: "v1", Title: "Cat video", Description: "a cat"}); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	h.setStage(t, "v1", videostatus.StageAwaitingNextAction)

	id, err := h.svc.CreateUploadTask(ctx, "v1", queue.UploadMetadata{})
	if err != nil {
		t.Fatalf("CreateUploadTask: %v", err)
	}
	task, err := h.svc.GetTask(ctx, id, queue.KindUpload)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	var payload queue.UploadPayload
	if err := task.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.Metadata.Title != "Cat video" || payload.Metadata.Description != "a cat" {
		t.Fatalf("expected catalog defaults, got %+v", payload.Metadata)
	}
}

func TestCreateUploadTaskAcceptsVideoAfterFailedUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	stage := videostatus.StageCompleted
	msg := "upload failed"
	cause := "quota exceeded"
	if _, err := h.statuses.Update(ctx, "v1", videostatus.Patch{Stage: &stage, Message: &msg, Error: &cause}); err != nil {
		t.Fatalf("seed status: %v", err)
	}
	if _, err := h.svc.CreateUploadTask(ctx, "v1", queue.UploadMetadata{Title: "again"}); err != nil {
		t.Fatalf("expected retry upload to be accepted, got %v", err)
	}
}

func TestVideoCatalog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.arts.SaveVideo(&artifacts.VideoRecord{ID: "v1", Title: "first", DownloadedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	if err := h.arts.SaveVideo(&artifacts.VideoRecord{ID: "v2", Title: "second", DownloadedAt: time.Now()}); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	h.setStage(t, "v1", videostatus.StageAwaitingNextAction)

	videos, err := h.svc.ListVideos(ctx)
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(videos) != 2 || videos[0].ID != "v2" || videos[1].ID != "v1" {
		t.Fatalf("unexpected catalog: %+v", videos)
	}
	if videos[0].Status != nil || videos[1].Status == nil || videos[1].Status.Stage != videostatus.StageAwaitingNextAction {
		t.Fatalf("unexpected statuses: %+v %+v", videos[0].Status, videos[1].Status)
	}

	video, err := h.svc.GetVideo(ctx, "v1")
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if video.Title != "first" || video.Status == nil {
		t.Fatalf("unexpected video %+v", video)
	}
	if _, err := h.svc.GetVideo(ctx, "v3"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLookupsReportNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.GetTask(ctx, "missing", queue.KindCrawl); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.svc.DeleteTask(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.VideoStatus(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	h.setStage(t, "v1", videostatus.StageCompleted)
	status, err := h.svc.VideoStatus(ctx, "v1")
	if err != nil {
		t.Fatalf("VideoStatus: %v", err)
	}
	if status.Stage != videostatus.StageCompleted {
		t.Fatalf("unexpected stage %q", status.Stage)
	}
}

func TestDeleteAndRemoveTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := testsupport.AddTask(t, h.store, &queue.Task{Kind: queue.KindCrawl})
	b := testsupport.AddTask(t, h.store, &queue.Task{Kind: queue.KindCrawl, Status: queue.StatusRunning})

	if err := h.svc.DeleteTask(ctx, a.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	result, err := h.svc.RemoveTasks(ctx, []string{b.ID, a.ID})
	if err != nil {
		t.Fatalf("RemoveTasks: %v", err)
	}
	if result.RemovedCount != 1 {
		t.Fatalf("expected one removal, got %d", result.RemovedCount)
	}
	if result.Tasks[0].Outcome != api.RemoveOutcomeRemoved || result.Tasks[1].Outcome != api.RemoveOutcomeNotFound {
		t.Fatalf("unexpected outcomes: %+v", result.Tasks)
	}
}

func TestCleanupUsesRetention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.AddTask(t, h.store, &queue.Task{
		Kind:      queue.KindCrawl,
		Status:    queue.StatusCompleted,
		CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
	})
	testsupport.AddTask(t, h.store, &queue.Task{
		Kind:      queue.KindCrawl,
		Status:    queue.StatusPending,
		CreatedAt: time.Now().Add(-30 * 24 * time.Hour),
	})

	removed, err := h.svc.Cleanup(ctx, 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
