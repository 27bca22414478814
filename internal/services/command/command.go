// Package command runs the external programs the pipeline shells out to
// (ffmpeg, edge-tts, yt-dlp and the upload command) and streams their output.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes binary with args. onLine receives each stdout line; stderr
// is captured for error reporting.
type Runner interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, binary string, args []string, onLine func(string)) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	return f(ctx, binary, args, onLine)
}

// Exec runs commands with os/exec.
type Exec struct{}

const stderrTail = 20

// Run starts binary and waits for it. A non-zero exit is reported with the
// last lines of stderr.
func (Exec) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}
	scanErr := scanner.Err()
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		detail := stderr.String()
		if detail == "" {
			return fmt.Errorf("%s: %w", binary, waitErr)
		}
		return fmt.Errorf("%s: %w: %s", binary, waitErr, detail)
	}
	if scanErr != nil {
		return fmt.Errorf("scan %s output: %w", binary, scanErr)
	}
	return nil
}

// Output runs binary through r and returns its trimmed stdout lines.
func Output(ctx context.Context, r Runner, binary string, args ...string) ([]string, error) {
	if r == nil {
		r = Exec{}
	}
	var lines []string
	err := r.Run(ctx, binary, args, func(line string) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	})
	return lines, err
}

// IsNotFound reports whether err means the binary could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// tailBuffer keeps the last stderrTail lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	for {
		idx := bytes.IndexByte(t.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(t.buf.Next(idx + 1)))
		if line == "" {
			continue
		}
		t.lines = append(t.lines, line)
		if len(t.lines) > stderrTail {
			t.lines = t.lines[len(t.lines)-stderrTail:]
		}
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.lines
	if rest := strings.TrimSpace(t.buf.String()); rest != "" {
		lines = append(append([]string(nil), lines...), rest)
	}
	return strings.Join(lines, " | ")
}
