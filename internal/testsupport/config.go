package testsupport

import (
	"path/filepath"
	"testing"

	"redub/internal/config"
)

// NewConfig returns a default configuration rooted in a fresh temp directory:
// <tmp>/staging, <tmp>/state and <tmp>/logs. The HTTP API binds an ephemeral
// loopback port and the queue is polled every second. Mutators run last.
func NewConfig(t testing.TB, mutators ...func(*config.Config)) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StagingDir = filepath.Join(root, "staging")
	cfg.Paths.StateDir = filepath.Join(root, "state")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Workflow.QueuePollInterval = 1
	for _, mutate := range mutators {
		mutate(&cfg)
	}
	return &cfg
}

// BaseDir returns the temp directory NewConfig rooted cfg in.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
