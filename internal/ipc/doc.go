// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// The server wraps the daemon and its task API; request and response types
// reuse the HTTP DTOs from package api so both transports stay in step.
package ipc
