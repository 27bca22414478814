package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"redub/internal/api"
	"redub/internal/artifacts"
	"redub/internal/daemon"
	"redub/internal/events"
	"redub/internal/ipc"
	"redub/internal/queue"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
	"redub/internal/workflow"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	statuses := testsupport.MustOpenStatuses(t, store)
	stream := events.NewStream(statuses, nil)
	t.Cleanup(stream.Close)

	// Hold processors until the test finishes so created tasks stay observable.
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	registry := workflow.NewRegistry()
	for _, kind := range queue.Kinds() {
		err := registry.Register(kind, workflow.ProcessorFunc(func(ctx context.Context, _ string) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		}))
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	mgr := workflow.NewManager(store, registry, workflow.Options{Config: cfg, PollInterval: 20 * time.Millisecond})
	svc, err := api.NewService(mgr, statuses, artifacts.NewStore(cfg.Paths.StagingDir), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	d, err := daemon.New(daemon.Options{Config: cfg, Manager: mgr, Service: svc, Events: stream})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socketDir, err := os.MkdirTemp("", "redub-ipc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(socketDir) })
	socket := filepath.Join(socketDir, "redub.sock")
	srv, err := ipc.NewServer(ctx, socket, d, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	startResp, err := client.Start()
	if err != nil || !startResp.Started {
		t.Fatalf("Start RPC: resp=%#v err=%v", startResp, err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.QueueDBPath != cfg.QueueDBPath() {
		t.Fatalf("unexpected status %#v", status)
	}

	crawl, err := client.CreateCrawl(ipc.CrawlRequest{URL: "https://v.douyin.com/abc123/"})
	if err != nil || crawl.TaskID == "" {
		t.Fatalf("CreateCrawl: resp=%#v err=%v", crawl, err)
	}
	if _, err := client.CreateCrawl(ipc.CrawlRequest{URL: "https://example.com/x"}); err == nil || !strings.Contains(err.Error(), "unsupported share url") {
		t.Fatalf("expected unsupported url error, got %v", err)
	}

	if _, err := client.CreateProcess(ipc.ProcessRequest{VideoID: "v1"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected unknown video to be rejected, got %v", err)
	}
	arts := artifacts.NewStore(cfg.Paths.StagingDir)
	if err := arts.SaveVideo(&artifacts.VideoRecord{ID: "v1", Title: "first"}); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}
	videos, err := client.VideoList()
	if err != nil || len(videos.Videos) != 1 || videos.Videos[0].Title != "first" {
		t.Fatalf("VideoList: %#v %v", videos, err)
	}
	shownVideo, err := client.VideoShow("v1")
	if err != nil || shownVideo.Video.ID != "v1" {
		t.Fatalf("VideoShow: %#v %v", shownVideo, err)
	}

	first, err := client.CreateProcess(ipc.ProcessRequest{VideoID: "v1"})
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	second, err := client.CreateProcess(ipc.ProcessRequest{VideoID: "v1"})
	if err != nil {
		t.Fatalf("CreateProcess again: %v", err)
	}
	if first.TaskID != second.TaskID {
		t.Fatalf("expected active process task to be reused, got %s and %s", first.TaskID, second.TaskID)
	}

	list, err := client.TaskList(ipc.TaskListRequest{Kind: "process"})
	if err != nil {
		t.Fatalf("TaskList: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != first.TaskID {
		t.Fatalf("unexpected process list %#v", list.Tasks)
	}
	byVideo, err := client.TaskList(ipc.TaskListRequest{VideoID: "v1"})
	if err != nil || len(byVideo.Tasks) != 1 {
		t.Fatalf("TaskList by video: %#v %v", byVideo, err)
	}

	shown, err := client.TaskShow(crawl.TaskID, "")
	if err != nil || shown.Task.Kind != "crawl" {
		t.Fatalf("TaskShow: %#v %v", shown, err)
	}
	if _, err := client.TaskShow("missing", ""); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := stream.Publish(ctx, "v9", "", videostatus.StagePatch(videostatus.StageAwaitingNextAction, 100, "ready")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	video, err := client.VideoStatus("v9")
	if err != nil || video.Status.Stage != videostatus.StageAwaitingNextAction {
		t.Fatalf("VideoStatus: %#v %v", video, err)
	}
	evs, err := client.Events(0, "v9")
	if err != nil || len(evs.Events) != 1 || evs.Next != 1 {
		t.Fatalf("Events: %#v %v", evs, err)
	}

	upload, err := client.CreateUpload(ipc.UploadRequest{VideoID: "v9", Metadata: queue.UploadMetadata{Title: "Cats"}})
	if err != nil || upload.TaskID == "" {
		t.Fatalf("CreateUpload: %#v %v", upload, err)
	}

	removed, err := client.TaskRemove([]string{upload.TaskID, "missing"})
	if err != nil {
		t.Fatalf("TaskRemove: %v", err)
	}
	if removed.RemovedCount != 1 || removed.Tasks[1].Outcome != api.RemoveOutcomeNotFound {
		t.Fatalf("unexpected remove result %#v", removed)
	}

	cleanup, err := client.QueueCleanup(time.Hour)
	if err != nil || cleanup.Removed != 0 {
		t.Fatalf("QueueCleanup: %#v %v", cleanup, err)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "queue.db") || !dbHealth.IntegrityCheck {
		t.Fatalf("unexpected db health: %#v", dbHealth)
	}

	stopResp, err := client.Stop()
	if err != nil || !stopResp.Stopped {
		t.Fatalf("Stop RPC: %#v %v", stopResp, err)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}
