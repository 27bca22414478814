package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"redub/internal/api"
	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/daemon"
	"redub/internal/events"
	"redub/internal/queue"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
	"redub/internal/workflow"
)

type fixture struct {
	cfg      *config.Config
	store    *queue.Store
	statuses *videostatus.Store
	stream   *events.Stream
	daemon   *daemon.Daemon
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	statuses := testsupport.MustOpenStatuses(t, store)
	stream := events.NewStream(statuses, nil)
	t.Cleanup(stream.Close)

	registry := workflow.NewRegistry()
	for _, kind := range queue.Kinds() {
		if err := registry.Register(kind, workflow.ProcessorFunc(func(context.Context, string) error { return nil })); err != nil {
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
	return &fixture{cfg: cfg, store: store, statuses: statuses, stream: stream, daemon: d}
}

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := f.daemon.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected daemon and workflow running, got %+v", status)
	}
	if status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	f := newFixture(t)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	mgr := workflow.NewManager(f.store, workflow.NewRegistry(), workflow.Options{Config: f.cfg})
	svc, err := api.NewService(mgr, f.statuses, artifacts.NewStore(f.cfg.Paths.StagingDir), nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	other, err := daemon.New(daemon.Options{Config: f.cfg, Manager: mgr, Service: svc})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAPICreateListAndGetTasks(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.Handler()

	w := serve(t, h, http.MethodPost, "/api/crawl", `{"url":"https://v.douyin.com/abc123/"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var created api.CreateTaskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.TaskID == "" {
		t.Fatalf("decode create response: %v %q", err, w.Body.String())
	}

	w = serve(t, h, http.MethodGet, "/api/tasks?kind=crawl", "")
	var list api.TaskListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != created.TaskID || list.Tasks[0].Kind != "crawl" {
		t.Fatalf("unexpected list %+v", list.Tasks)
	}

	w = serve(t, h, http.MethodGet, "/api/tasks/"+created.TaskID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = serve(t, h, http.MethodDelete, "/api/tasks/"+created.TaskID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = serve(t, h, http.MethodGet, "/api/tasks/"+created.TaskID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestAPIMapsValidationErrors(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.Handler()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad share url", http.MethodPost, "/api/crawl", `{"url":"https://example.com/v"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/crawl", `{"link":"x"}`, http.StatusBadRequest},
		{"upload unknown video", http.MethodPost, "/api/upload/v1", `{"metadata":{"title":"t"}}`, http.StatusNotFound},
		{"process unknown video", http.MethodPost, "/api/process/ghost", `{}`, http.StatusNotFound},
		{"missing video", http.MethodGet, "/api/videos/ghost", "", http.StatusNotFound},
		{"unknown kind", http.MethodGet, "/api/tasks?kind=encode", "", http.StatusBadRequest},
		{"missing video status", http.MethodGet, "/api/videos/none/status", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := serve(t, h, tc.method, tc.path, tc.body); w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAPIVideoStatusAndEvents(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.Handler()
	ctx := context.Background()
	if _, err := f.stream.Publish(ctx, "v1", "", videostatus.StagePatch(videostatus.StageTranscribing, 5, "preparing transcription")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := f.stream.Publish(ctx, "v2", "", videostatus.StagePatch(videostatus.StageIdle, 0, "")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	w := serve(t, h, http.MethodGet, "/api/videos/v1/status", "")
	var resp api.VideoStatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status.Stage != videostatus.StageTranscribing || resp.Status.Progress != 5 {
		t.Fatalf("unexpected status %+v", resp.Status)
	}

	w = serve(t, h, http.MethodGet, "/api/events?since=0&videoId=v1", "")
	var evs struct {
		Events []events.StatusEvent `json:"events"`
		Next   int64                `json:"next"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &evs); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(evs.Events) != 1 || evs.Events[0].VideoID != "v1" || evs.Next != 2 {
		t.Fatalf("unexpected events %+v next=%d", evs.Events, evs.Next)
	}
}

func TestAPIVideoCatalog(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.Handler()
	arts := artifacts.NewStore(f.cfg.Paths.StagingDir)
	if err := arts.SaveVideo(&artifacts.VideoRecord{ID: "v1", Title: "Cat video", Author: "catchannel"}); err != nil {
		t.Fatalf("SaveVideo: %v", err)
	}

	w := serve(t, h, http.MethodGet, "/api/videos", "")
	var list api.VideoListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Videos) != 1 || list.Videos[0].Title != "Cat video" {
		t.Fatalf("unexpected catalog %+v", list.Videos)
	}

	w = serve(t, h, http.MethodGet, "/api/videos/v1", "")
	var one api.VideoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	if w.Code != http.StatusOK || one.Video.Author != "catchannel" {
		t.Fatalf("unexpected video %d %+v", w.Code, one.Video)
	}

	w = serve(t, h, http.MethodPost, "/api/process/v1", `{}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected cataloged video to be accepted, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIStatusReportsWorkflow(t *testing.T) {
	f := newFixture(t)
	w := serve(t, f.daemon.Handler(), http.MethodGet, "/api/status", "")
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.QueueDBPath != f.cfg.QueueDBPath() {
		t.Fatalf("unexpected db path %q", status.QueueDBPath)
	}
	if _, ok := status.Workflow.QueueStats["pending"]; !ok {
		t.Fatalf("expected every status in queue stats, got %v", status.Workflow.QueueStats)
	}
}
