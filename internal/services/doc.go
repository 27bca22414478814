// Package services defines shared utilities consumed by the pipeline stages,
// task processors, and provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, video IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures are classified
//     once and surfaced with the provider's own message.
//
// Provider clients live in subpackages (llm, transcribe, translate,
// synthesize, crawl, upload).
package services
