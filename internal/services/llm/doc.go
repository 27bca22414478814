// Package llm is a small client for OpenAI-compatible chat completion APIs.
//
// The translate service uses it to translate subtitle batches. Complete
// returns the model's text; CompleteJSON additionally requests a JSON object
// response and tolerates code fences around the payload. Failed requests are
// returned to the caller as-is; the client never retries on its own.
package llm
