// Package queue persists tasks in SQLite and exposes the TaskStore operations
// the scheduler and API layer build on.
//
// A task is a unit of asynchronous work of a fixed kind (crawl, process,
// upload) tracked from pending through running to completed or failed. The
// store is pure persistence: it applies merge patches, orders listings, and
// purges old finished work, but decides nothing about scheduling. The one
// rule it does enforce is that a video never has two active process tasks;
// a partial unique index backs that up.
//
// The schema version lives in PRAGMA user_version. A database stamped with a
// different version is refused; delete it to start over.
package queue
