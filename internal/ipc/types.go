package ipc

import (
	"redub/internal/api"
	"redub/internal/events"
	"redub/internal/queue"
	"redub/internal/videostatus"
)

// Task mirrors the HTTP API task DTO.
type Task = api.Task

// StartRequest triggers daemon startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the scheduler and HTTP API.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status in API shape.
type StatusResponse = api.DaemonStatus

// CrawlRequest enqueues a share-link download.
type CrawlRequest struct {
	URL     string             `json:"url"`
	Options queue.CrawlOptions `json:"options"`
}

// ProcessRequest creates or continues pipeline processing for a video.
type ProcessRequest struct {
	VideoID string               `json:"videoId"`
	Options queue.ProcessOptions `json:"options"`
}

// UploadRequest enqueues publication of a processed video.
type UploadRequest struct {
	VideoID  string               `json:"videoId"`
	Metadata queue.UploadMetadata `json:"metadata"`
}

// CreateResponse carries the id of the created or reused task.
type CreateResponse = api.CreateTaskResponse

// TaskListRequest filters a task listing by kind or video. Both empty lists
// every task.
type TaskListRequest struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

// TaskListResponse contains tasks, newest first.
type TaskListResponse = api.TaskListResponse

// TaskShowRequest fetches one task. Kind is optional.
type TaskShowRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// TaskShowResponse wraps a single task.
type TaskShowResponse = api.TaskResponse

// TaskRemoveRequest removes tasks by id.
type TaskRemoveRequest struct {
	IDs []string `json:"ids"`
}

// TaskRemoveResponse reports per-id removal outcomes.
type TaskRemoveResponse = api.RemoveTasksResult

// VideoStatusRequest fetches the pipeline status of a video.
type VideoStatusRequest struct {
	VideoID string `json:"videoId"`
}

// VideoStatusResponse wraps the per-video status.
type VideoStatusResponse struct {
	Status videostatus.Status `json:"status"`
}

// VideoListRequest lists the video catalog.
type VideoListRequest struct{}

// VideoListResponse wraps the video catalog.
type VideoListResponse = api.VideoListResponse

// VideoShowRequest fetches one catalog entry.
type VideoShowRequest struct {
	VideoID string `json:"videoId"`
}

// VideoShowResponse wraps one catalog entry.
type VideoShowResponse = api.VideoResponse

// CleanupRequest purges finished tasks older than MaxAgeSeconds. Zero uses
// the configured retention.
type CleanupRequest struct {
	MaxAgeSeconds int64 `json:"maxAgeSeconds"`
}

// CleanupResponse reports the number of purged tasks.
type CleanupResponse = api.CleanupResponse

// DatabaseHealthRequest fetches queue database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse mirrors queue.DatabaseHealth.
type DatabaseHealthResponse struct {
	DBPath           string `json:"dbPath"`
	DatabaseExists   bool   `json:"databaseExists"`
	DatabaseReadable bool   `json:"databaseReadable"`
	SchemaVersion    int    `json:"schemaVersion"`
	TableExists      bool   `json:"tableExists"`
	IntegrityCheck   bool   `json:"integrityCheck"`
	TotalTasks       int    `json:"totalTasks"`
	Error            string `json:"error,omitempty"`
}

// EventsRequest polls buffered status events after Since.
type EventsRequest struct {
	Since   int64  `json:"since"`
	VideoID string `json:"videoId"`
}

// EventsResponse carries events and the sequence to poll from next.
type EventsResponse struct {
	Events []events.StatusEvent `json:"events"`
	Next   int64                `json:"next"`
}
