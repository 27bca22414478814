// Package synthesize implements the pipeline Synthesizer. Each translated
// segment becomes one audio clip, rendered by the edge-tts command or the
// ElevenLabs HTTP API; clips can be joined into one track with ffmpeg.
package synthesize

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/logging"
	"redub/internal/pipeline"
	"redub/internal/services"
	"redub/internal/services/command"
)

const (
	ProviderEdgeTTS    = "edge-tts"
	ProviderElevenLabs = "elevenlabs"
)

// clip is one piece of text to render.
type clip struct {
	text  string
	voice string
	speed float64
	pitch float64
	dest  string
}

// engine renders a clip to clip.dest.
type engine interface {
	render(ctx context.Context, c clip) error
	voice(opts pipeline.VoiceOptions) string
}

// Service renders speech with the configured engines.
type Service struct {
	defaultProvider string
	format          string
	ffmpeg          string
	runner          command.Runner
	engines         map[string]engine
	logger          *slog.Logger
}

// Option customizes the Service.
type Option func(*Service)

// WithRunner overrides how edge-tts and ffmpeg are executed.
func WithRunner(r command.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient overrides the ElevenLabs HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if el, ok := s.engines[ProviderElevenLabs].(*elevenLabs); ok && client != nil {
			el.httpClient = client
		}
	}
}

// New builds a Service from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	syn := cfg.Synthesis
	s := &Service{
		defaultProvider: syn.Provider,
		format:          syn.OutputFormat,
		ffmpeg:          cfg.FFmpegBinary(),
		runner:          command.Exec{},
		logger:          logging.NewNop(),
	}
	if s.defaultProvider == "" {
		s.defaultProvider = ProviderEdgeTTS
	}
	if s.format == "" {
		s.format = "mp3"
	}
	edge := &edgeTTS{
		binary:   syn.EdgeTTSBinary,
		male:     syn.MaleVoice,
		female:   syn.FemaleVoice,
		fallback: syn.DefaultVoice,
		service:  s,
	}
	eleven := &elevenLabs{
		apiKey:     strings.TrimSpace(syn.ElevenLabsAPIKey),
		baseURL:    strings.TrimRight(syn.ElevenLabsBaseURL, "/"),
		model:      syn.ElevenLabsModel,
		httpClient: &http.Client{Timeout: time.Duration(syn.TimeoutSeconds) * time.Second},
	}
	s.engines = map[string]engine{
		ProviderEdgeTTS:    edge,
		ProviderElevenLabs: eleven,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "synthesizer")
	return s
}

// Synthesize renders one clip per non-empty translated segment into
// req.OutputDir and optionally concatenates them.
func (s *Service) Synthesize(ctx context.Context, req pipeline.SynthesisRequest) (*artifacts.SynthesisManifest, error) {
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.defaultProvider
	}
	eng, ok := s.engines[provider]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "synthesizing", "synthesize", fmt.Sprintf("unsupported synthesis provider %q", provider), nil)
	}
	if el, ok := eng.(*elevenLabs); ok && el.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "synthesizing", "synthesize", "elevenlabs api key is not configured", nil)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	voice := eng.voice(req.Voice)
	manifest := &artifacts.SynthesisManifest{Provider: provider, Voice: voice}
	for _, seg := range req.Segments {
		text := strings.TrimSpace(seg.TranslatedText)
		if text == "" {
			continue
		}
		dest := filepath.Join(req.OutputDir, fmt.Sprintf("segment-%04d.%s", seg.ID, s.format))
		c := clip{text: text, voice: voice, speed: req.Voice.Speed, pitch: req.Voice.Pitch, dest: dest}
		if err := eng.render(ctx, c); err != nil {
			return nil, fmt.Errorf("segment %d: %w", seg.ID, err)
		}
		manifest.Segments = append(manifest.Segments, artifacts.SynthesizedSegment{
			ID:        seg.ID,
			AudioPath: dest,
			Start:     seg.Start,
			End:       seg.End,
		})
		manifest.DurationSeconds += seg.End - seg.Start
	}
	if len(manifest.Segments) == 0 {
		return nil, fmt.Errorf("no text to synthesize")
	}

	if req.CombineAudio {
		combined := filepath.Join(req.OutputDir, "combined."+s.format)
		if err := s.combine(ctx, manifest.Segments, combined); err != nil {
			logging.WarnWithContext(s.logger, "could not combine audio clips", "audio_combine_failed",
				logging.String(logging.FieldVideoID, req.VideoID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ffmpeg installation"),
				logging.String(logging.FieldImpact, "only per-segment clips are available"),
			)
		} else {
			manifest.CombinedAudioPath = combined
		}
	}
	return manifest, nil
}

// HealthCheck reports whether the default provider is usable.
func (s *Service) HealthCheck(context.Context) pipeline.Health {
	const name = "synthesizer"
	switch eng := s.engines[s.defaultProvider].(type) {
	case *edgeTTS:
		if _, err := exec.LookPath(eng.binary); err != nil {
			return pipeline.Unhealthy(name, fmt.Sprintf("%s not found", eng.binary))
		}
	case *elevenLabs:
		if eng.apiKey == "" {
			return pipeline.Unhealthy(name, "synthesis.elevenlabs_api_key / ELEVENLABS_API_KEY not set")
		}
	default:
		return pipeline.Unhealthy(name, fmt.Sprintf("unknown provider %q", s.defaultProvider))
	}
	return pipeline.Healthy(name)
}

func (s *Service) combine(ctx context.Context, segments []artifacts.SynthesizedSegment, dest string) error {
	listPath := filepath.Join(filepath.Dir(dest), "filelist.txt")
	var list strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(seg.AudioPath, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", dest}
	if err := s.runner.Run(ctx, s.ffmpeg, args, nil); err != nil {
		return services.Wrap(services.ErrExternalTool, "synthesizing", "combine audio", "", err)
	}
	return nil
}
