// Package language normalizes the language codes accepted by the pipeline
// and maps them onto the forms each provider expects (DeepL codes, display
// names for prompts, transcription hints).
package language
