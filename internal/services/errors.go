package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrCollaborator    = errors.New("collaborator error")
	ErrMissingArtifact = errors.New("missing artifact")
	ErrTimeout         = errors.New("timeout")
	ErrConfiguration   = errors.New("configuration error")
	ErrExternalTool    = errors.New("external tool error")
)

// Error is a classified failure carrying stage context. Marker is one of the
// exported sentinels above; Cause is the underlying failure when there is one.
type Error struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalTool
	}
	return &Error{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// Message returns the user-facing text for err: the innermost cause of a
// wrapped failure, or the detail of a marker-only one.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var svc *Error
	for errors.As(err, &svc) {
		if svc.Cause == nil {
			return buildDetail("", "", svc.Message)
		}
		err = svc.Cause
		svc = nil
	}
	return err.Error()
}

// ErrorDetails classifies an error for logs and notifications.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details maps err onto its sentinel kind with an operator hint.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: "unknown", Message: Message(err), Hint: "check logs for details"}
	switch {
	case errors.Is(err, ErrValidation):
		details.Kind, details.Hint = "validation", "fix the request input and submit again"
	case errors.Is(err, ErrNotFound):
		details.Kind, details.Hint = "not_found", "verify the task or video id"
	case errors.Is(err, ErrMissingArtifact):
		details.Kind, details.Hint = "missing_artifact", "retry processing from the stage that produces the artifact"
	case errors.Is(err, ErrTimeout):
		details.Kind, details.Hint = "timeout", "raise workflow.task_timeout or check the provider"
	case errors.Is(err, ErrCollaborator):
		details.Kind, details.Hint = "collaborator", "check provider credentials and availability, then retry"
	case errors.Is(err, ErrConfiguration):
		details.Kind, details.Hint = "configuration", "fix the config file and restart the daemon"
	case errors.Is(err, ErrExternalTool):
		details.Kind, details.Hint = "external_tool", "run the tool by hand to see its output"
	}
	return details
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
