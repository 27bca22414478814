package daemonrun_test

import (
	"context"
	"testing"

	"redub/internal/daemonrun"
	"redub/internal/queue"
	"redub/internal/testsupport"
)

func TestBuildWiresEveryTaskKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rt, err := daemonrun.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(rt.Close)

	if err := rt.Manager.Registry().Validate(); err != nil {
		t.Fatalf("registry incomplete: %v", err)
	}
	for _, kind := range queue.Kinds() {
		if _, ok := rt.Manager.Registry().Lookup(kind); !ok {
			t.Fatalf("no processor for %s", kind)
		}
	}
	if rt.Daemon.Service() != rt.Service {
		t.Fatal("daemon should serve the runtime task API")
	}
	health := rt.Pipeline.HealthCheck(context.Background())
	if len(health) == 0 {
		t.Fatal("expected collaborator health reports")
	}
}

func TestBuildRuntimesAreIndependent(t *testing.T) {
	first, err := daemonrun.Build(context.Background(), testsupport.NewConfig(t), nil)
	if err != nil {
		t.Fatalf("Build first: %v", err)
	}
	t.Cleanup(first.Close)
	second, err := daemonrun.Build(context.Background(), testsupport.NewConfig(t), nil)
	if err != nil {
		t.Fatalf("Build second: %v", err)
	}
	t.Cleanup(second.Close)

	ctx := context.Background()
	if _, err := first.Service.CreateCrawlTask(ctx, "https://v.douyin.com/abc123/", queue.CrawlOptions{}); err != nil {
		t.Fatalf("CreateCrawlTask: %v", err)
	}
	tasks, err := second.Service.ListTasks(ctx, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected second runtime to have its own queue, got %d tasks", len(tasks))
	}
}
