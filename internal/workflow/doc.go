// Package workflow runs the task queue.
//
// A Registry maps every queue.Kind to its Processor; the Manager refuses to
// start while any kind lacks one. The Manager owns a single scheduling
// goroutine that drains active tasks oldest-first, one at a time, bounding
// each dispatch with the configured task deadline. Wake, a poll ticker and the
// startup drain all trigger the same scan. Failed tasks are never retried
// automatically; the api package requeues them on request.
package workflow
