// Package api is the task-queue surface shared by the IPC server, the HTTP
// status API and the CLI.
//
// Service validates requests before anything is written: crawl URLs must be
// supported share links, uploads need a title and a video that finished
// processing, and process requests either reuse the active task for a video,
// requeue its latest finished task when a retry step is given, or enqueue a
// new one.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds.
// Task payloads pass through as json.RawMessage.
package api
