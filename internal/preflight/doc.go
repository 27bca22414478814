// Package preflight provides readiness checks for the directories, external
// programs and services redub depends on.
//
// The daemon runs RunAll and CheckSystemDeps at startup and logs failures
// as warnings; a missing provider only fails the stage that needs it. The
// CLI "redub queue health" command renders the same results.
package preflight
