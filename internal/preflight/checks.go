package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sys/unix"

	"redub/internal/config"
	"redub/internal/deps"
	"redub/internal/services/command"
	"redub/internal/services/llm"
)

// CheckLLM sends one tiny JSON-mode completion to prove the key and model
// work. The request gets 30 seconds and is not retried.
func CheckLLM(ctx context.Context, name string, cfg llm.Config) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reply, err := llm.NewClient(cfg).CompleteJSON(ctx, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeLLMJSON(reply, &parsed); err != nil || !parsed.OK {
		return Result{Name: name, Detail: "unexpected reply to health check"}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckNATS verifies that the status fan-out server accepts connections.
func CheckNATS(url string) Result {
	const name = "NATS"
	nc, err := nats.Connect(url, nats.Name("redub-preflight"), nats.Timeout(3*time.Second), nats.NoReconnect())
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", url, err)}
	}
	defer nc.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (connected)", nc.ConnectedUrlRedacted())}
}

// CheckDirectoryAccess reports whether path is a directory this process can
// list, create files in, and traverse.
func CheckDirectoryAccess(name, path string) Result {
	fail := func(reason string) Result {
		return Result{Name: name, Detail: path + " (error: " + reason + ")"}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fail("does not exist")
	case err != nil:
		return fail("stat: " + err.Error())
	case !info.IsDir():
		return fail("is not a directory")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail("insufficient permissions: " + err.Error())
	}
	return Result{Name: name, Passed: true, Detail: path + " (read/write ok)"}
}

// CheckSystemDeps evaluates the external programs the configured providers
// need. Both the daemon and the CLI health command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio extraction and track assembly",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "Downloader",
			Command:     cfg.Crawl.Binary,
			Description: "Required for crawl tasks",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "edge-tts",
			Command:     cfg.Synthesis.EdgeTTSBinary,
			Description: "Required for edge-tts synthesis",
			Optional:    cfg.Synthesis.Provider != "edge-tts",
		},
		{
			Name:        "Uploader",
			Command:     cfg.Upload.Binary,
			Description: "Required for upload tasks",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(ctx, command.Exec{}, requirements)
}

// summarizeLLMError produces a human-readable summary for health check failures.
func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
