package upload

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"redub/internal/config"
	"redub/internal/fileutil"
	"redub/internal/pipeline"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/services/command"
)

// Uploader republishes a finished video and returns its remote id.
type Uploader interface {
	Upload(ctx context.Context, mediaPath string, meta queue.UploadMetadata) (string, error)
}

// CommandUploader hands the media and a metadata file to an external
// program. The program's last non-empty stdout line is the remote id.
type CommandUploader struct {
	binary  string
	args    []string
	timeout time.Duration
	runner  command.Runner
}

// NewCommandUploader builds an uploader from the [upload] section.
func NewCommandUploader(cfg config.Command, runner command.Runner) *CommandUploader {
	if runner == nil {
		runner = command.Exec{}
	}
	return &CommandUploader{
		binary:  strings.TrimSpace(cfg.Binary),
		args:    append([]string(nil), cfg.Args...),
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		runner:  runner,
	}
}

// Upload writes <media dir>/upload.json and runs the upload command.
func (u *CommandUploader) Upload(ctx context.Context, mediaPath string, meta queue.UploadMetadata) (string, error) {
	if u.binary == "" {
		return "", services.Wrap(services.ErrConfiguration, "uploading", "upload", "upload.binary is not configured", nil)
	}
	metaPath := filepath.Join(filepath.Dir(mediaPath), metadataFile)
	if err := fileutil.WriteJSON(metaPath, meta); err != nil {
		return "", fmt.Errorf("write upload metadata: %w", err)
	}

	runCtx := ctx
	if u.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	args := append(append([]string(nil), u.args...), mediaPath, metaPath)
	lines, err := command.Output(runCtx, u.runner, u.binary, args...)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "uploading", "upload", "", err)
	}
	if len(lines) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "uploading", "upload", fmt.Sprintf("%s printed no remote id", u.binary), nil)
	}
	return lines[len(lines)-1], nil
}

// HealthCheck reports whether the upload command is configured and present.
func (u *CommandUploader) HealthCheck(context.Context) pipeline.Health {
	const name = "uploader"
	if u.binary == "" {
		return pipeline.Unhealthy(name, "upload.binary not set")
	}
	if _, err := exec.LookPath(u.binary); err != nil {
		return pipeline.Unhealthy(name, fmt.Sprintf("%s not found", u.binary))
	}
	return pipeline.Healthy(name)
}
