// Command redub is the CLI and daemon entry point. The daemon subcommand runs
// the task scheduler; every other subcommand talks to it over its Unix socket
// and, for read-only queue inspection, falls back to the queue database when
// the daemon is down.
package main
