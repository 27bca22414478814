// Package daemon coordinates the long-running redub process.
//
// It owns the single-instance flock, starts and stops the workflow manager,
// and serves the HTTP status and task API. Individual task processing lives
// in the workflow, pipeline and services packages; the daemon focuses on
// startup, shutdown and status aggregation.
package daemon
