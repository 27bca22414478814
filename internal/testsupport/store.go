package testsupport

import (
	"context"
	"testing"

	"redub/internal/config"
	"redub/internal/queue"
	"redub/internal/videostatus"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenStatuses opens the video status store on the queue database.
func MustOpenStatuses(t testing.TB, store *queue.Store) *videostatus.Store {
	t.Helper()

	statuses, err := videostatus.Open(context.Background(), store.DB())
	if err != nil {
		t.Fatalf("videostatus.Open: %v", err)
	}
	return statuses
}

// AddTask persists task through store and fails the test on error.
func AddTask(t testing.TB, store *queue.Store, task *queue.Task) *queue.Task {
	t.Helper()

	if err := store.Add(context.Background(), task); err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return task
}
