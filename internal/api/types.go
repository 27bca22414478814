package api

import (
	"encoding/json"

	"redub/internal/artifacts"
	"redub/internal/videostatus"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a queue task in a transport-friendly format.
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"type"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	VideoID   string          `json:"videoId,omitempty"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"createdAt,omitempty"`
	UpdatedAt string          `json:"updatedAt,omitempty"`
}

// TaskListResponse wraps a collection of tasks.
type TaskListResponse struct {
	Tasks []Task `json:"tasks"`
}

// TaskResponse wraps a single task.
type TaskResponse struct {
	Task Task `json:"task"`
}

// CreateTaskResponse carries the id of a created or reused task.
type CreateTaskResponse struct {
	TaskID string `json:"taskId"`
}

// VideoStatusResponse wraps the per-video pipeline status.
type VideoStatusResponse struct {
	Status videostatus.Status `json:"status"`
}

// Video is a cataloged video joined with its pipeline status.
type Video struct {
	artifacts.VideoRecord
	Status *videostatus.Status `json:"status,omitempty"`
}

// VideoListResponse wraps the video catalog.
type VideoListResponse struct {
	Videos []Video `json:"videos"`
}

// VideoResponse wraps a single catalog entry.
type VideoResponse struct {
	Video Video `json:"video"`
}

// WorkflowStatus summarizes scheduler state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Busy        bool           `json:"busy"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	CurrentTask *Task          `json:"currentTask,omitempty"`
	LastTask    *Task          `json:"lastTask,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for pipeline collaborators.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external program.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	QueueDBPath   string             `json:"queueDbPath"`
	LockFilePath  string             `json:"lockFilePath"`
	Workflow      WorkflowStatus     `json:"workflow"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	DroppedEvents int64              `json:"droppedEvents"`
}

// CleanupResponse reports how many finished tasks were purged.
type CleanupResponse struct {
	Removed int64 `json:"removed"`
}

// RemoveOutcome reports the result of removing one task.
type RemoveOutcome string

const (
	RemoveOutcomeRemoved  RemoveOutcome = "removed"
	RemoveOutcomeNotFound RemoveOutcome = "not_found"
)

// RemoveResult is the per-id outcome of a bulk removal.
type RemoveResult struct {
	ID      string        `json:"id"`
	Outcome RemoveOutcome `json:"outcome"`
}

// RemoveTasksResult aggregates a bulk removal.
type RemoveTasksResult struct {
	RemovedCount int            `json:"removedCount"`
	Tasks        []RemoveResult `json:"tasks"`
}
