package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of task kinds.
type Kind string

const (
	KindCrawl   Kind = "crawl"
	KindProcess Kind = "process"
	KindUpload  Kind = "upload"
)

var allKinds = []Kind{KindCrawl, KindProcess, KindUpload}

// Kinds returns every task kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind converts a string into a Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return kind, true
		}
	}
	return "", false
}

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var allStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Active reports whether the status still needs the scheduler.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Task is a queued unit of work persisted in SQLite.
type Task struct {
	ID        string
	Kind      Kind
	Status    Status
	Progress  int
	VideoID   string
	Payload   json.RawMessage
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the task is pending or running.
func (t *Task) IsActive() bool {
	return t != nil && t.Status.Active()
}

// DecodePayload unmarshals the kind-specific payload into v.
func (t *Task) DecodePayload(v any) error {
	if t == nil || len(t.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload for task %s: %w", t.Kind, t.ID, err)
	}
	return nil
}

// Patch is a merge patch; nil fields are left untouched.
type Patch struct {
	Status   *Status
	Progress *int
	VideoID  *string
	Payload  json.RawMessage
	Error    *string
}

// StatusPatch builds a patch that moves a task to status and sets its error text.
func StatusPatch(status Status, progress int, errMsg string) Patch {
	return Patch{Status: &status, Progress: &progress, Error: &errMsg}
}

// NewTaskID returns an identifier of the form task_<unix-millis>_<9 chars>.
func NewTaskID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "task_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + random[:9]
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total     int
	Pending   int
	Running   int
	Completed int
	Failed    int
}
