package pipeline

import (
	"context"

	"redub/internal/artifacts"
)

// TranscribeRequest asks for speech recognition of a local media file.
type TranscribeRequest struct {
	VideoID   string
	MediaPath string
	Language  string
	Prompt    string
}

// Transcriber converts speech to timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*artifacts.Transcription, error)
}

// TranslateRequest carries one batch of segments.
type TranslateRequest struct {
	VideoID        string
	Segments       []artifacts.TranslatedSegment
	SourceLanguage string
	TargetLanguage string
	Provider       string
	Prompt         string
}

// Translator translates segment batches. The returned translation must hold
// one segment per input segment, in input order.
type Translator interface {
	Translate(ctx context.Context, req TranslateRequest) (*artifacts.Translation, error)
}

// VoiceOptions select and shape the synthesized voice.
type VoiceOptions struct {
	Voice     string
	VoiceType string
	Speed     float64
	Pitch     float64
}

// SynthesisRequest asks for per-segment speech audio.
type SynthesisRequest struct {
	VideoID        string
	Segments       []artifacts.TranslatedSegment
	TargetLanguage string
	Provider       string
	Voice          VoiceOptions
	OutputDir      string
	CombineAudio   bool
}

// Synthesizer renders translated text as speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*artifacts.SynthesisManifest, error)
}

// Health summarizes the readiness of a collaborator.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// HealthChecker is implemented by collaborators able to report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}
