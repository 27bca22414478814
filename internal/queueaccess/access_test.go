package queueaccess_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"redub/internal/api"
	"redub/internal/ipc"
	"redub/internal/queue"
	"redub/internal/queueaccess"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
)

func TestStoreAccessListsShowsAndRemoves(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	statuses := testsupport.MustOpenStatuses(t, store)
	ctx := context.Background()

	crawl := testsupport.AddTask(t, store, &queue.Task{Kind: queue.KindCrawl})
	proc := testsupport.AddTask(t, store, &queue.Task{Kind: queue.KindProcess, VideoID: "v1"})
	if _, err := statuses.Update(ctx, "v1", videostatus.StagePatch(videostatus.StageTranslating, 40, "translating")); err != nil {
		t.Fatalf("statuses.Update: %v", err)
	}

	access := queueaccess.NewStoreAccess(store, statuses, time.Hour)

	all, err := access.List(ctx, "", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("List all: %d tasks, err=%v", len(all), err)
	}
	forVideo, err := access.List(ctx, "", "v1")
	if err != nil || len(forVideo) != 1 || forVideo[0].ID != proc.ID {
		t.Fatalf("List for video: %#v err=%v", forVideo, err)
	}
	if _, err := access.List(ctx, "encode", ""); err == nil {
		t.Fatal("expected unknown kind error")
	}

	shown, err := access.Show(ctx, crawl.ID)
	if err != nil || shown == nil || shown.Kind != "crawl" {
		t.Fatalf("Show: %#v err=%v", shown, err)
	}
	missing, err := access.Show(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing task, got %#v err=%v", missing, err)
	}

	stats, err := access.Stats(ctx)
	if err != nil || stats["pending"] != 2 || stats["failed"] != 0 {
		t.Fatalf("Stats: %v err=%v", stats, err)
	}

	status, err := access.VideoStatus(ctx, "v1")
	if err != nil || status == nil || status.Stage != videostatus.StageTranslating {
		t.Fatalf("VideoStatus: %#v err=%v", status, err)
	}

	result, err := access.Remove(ctx, []string{crawl.ID, "nope"})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if result.RemovedCount != 1 || result.Tasks[1].Outcome != api.RemoveOutcomeNotFound {
		t.Fatalf("unexpected remove result %#v", result)
	}
}

func TestStoreAccessCleanupUsesDefaultAge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	old := time.Now().Add(-48 * time.Hour)
	testsupport.AddTask(t, store, &queue.Task{Kind: queue.KindCrawl, Status: queue.StatusCompleted, CreatedAt: old})
	testsupport.AddTask(t, store, &queue.Task{Kind: queue.KindCrawl, Status: queue.StatusPending, CreatedAt: old})

	access := queueaccess.NewStoreAccess(store, nil, 24*time.Hour)
	removed, err := access.Cleanup(context.Background(), 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected only the finished task purged, got %d", removed)
	}
}

func TestOpenWithFallbackUsesStoreWhenDaemonUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dial := func() (*ipc.Client, error) { return nil, errors.New("connection refused") }
	session, err := queueaccess.OpenWithFallback(dial, func() (*queue.Store, error) { return queue.Open(cfg) }, time.Hour)
	if err != nil {
		t.Fatalf("OpenWithFallback: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	if !session.Direct {
		t.Fatal("expected direct store access")
	}
	health, err := session.Access.DatabaseHealth(context.Background())
	if err != nil || !health.TableExists {
		t.Fatalf("DatabaseHealth: %#v err=%v", health, err)
	}
}

func TestOpenWithFallbackRequiresStoreOpener(t *testing.T) {
	if _, err := queueaccess.OpenWithFallback(nil, nil, 0); err == nil {
		t.Fatal("expected error without store opener")
	}
}
