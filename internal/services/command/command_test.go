package command_test

import (
	"context"
	"strings"
	"testing"

	"redub/internal/services/command"
)

func TestExecStreamsStdoutLines(t *testing.T) {
	lines, err := command.Output(context.Background(), command.Exec{}, "/bin/sh", "-c", "echo one; echo; echo '  two  '")
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if strings.Join(lines, ",") != "one,two" {
		t.Fatalf("unexpected lines %v", lines)
	}
}

func TestExecReportsStderrOnFailure(t *testing.T) {
	err := command.Exec{}.Run(context.Background(), "/bin/sh", []string{"-c", "echo 'bad input' >&2; exit 3"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecMissingBinary(t *testing.T) {
	err := command.Exec{}.Run(context.Background(), "redub-definitely-missing-binary", nil, nil)
	if !command.IsNotFound(err) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
