// Package pipeline implements the process-task processor: the resumable
// transcribe → translate → synthesize → edit sequence.
//
// Resume decisions are driven by the stored video progress and the stage
// progress ranges. A stage that does not need to run reloads its artifact
// instead; a missing artifact aborts the run with
// services.ErrMissingArtifact rather than silently continuing. Every status
// change is published on an events.Stream; the controller never writes the
// video status table directly.
package pipeline
