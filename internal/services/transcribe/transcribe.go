// Package transcribe implements the pipeline Transcriber against an
// OpenAI-compatible audio transcription endpoint. Video inputs are reduced
// to an mp3 track with ffmpeg before upload.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"redub/internal/artifacts"
	"redub/internal/config"
	"redub/internal/pipeline"
	"redub/internal/services"
	"redub/internal/services/command"
)

// MaxUploadBytes is the provider's limit on the uploaded audio size.
const MaxUploadBytes = 25 * 1024 * 1024

var videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true}

// Service transcribes media files.
type Service struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	ffmpeg      string
	httpClient  *http.Client
	runner      command.Runner
}

// Option customizes the Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithRunner overrides how ffmpeg is executed.
func WithRunner(r command.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.runner = r
		}
	}
}

// New builds a Service from configuration.
func New(cfg *config.Config, opts ...Option) *Service {
	t := cfg.Transcription
	s := &Service{
		apiKey:      t.APIKey,
		baseURL:     strings.TrimRight(t.BaseURL, "/"),
		model:       t.Model,
		temperature: t.Temperature,
		ffmpeg:      cfg.FFmpegBinary(),
		httpClient:  &http.Client{Timeout: time.Duration(t.TimeoutSeconds) * time.Second},
		runner:      command.Exec{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe uploads the audio of req.MediaPath and returns timed segments.
func (s *Service) Transcribe(ctx context.Context, req pipeline.TranscribeRequest) (*artifacts.Transcription, error) {
	if s.apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribing", "transcribe", "transcription api key is not configured", nil)
	}
	audioPath, err := s.prepareAudio(ctx, req.MediaPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() > MaxUploadBytes {
		return nil, fmt.Errorf("audio file exceeds %dMB limit", MaxUploadBytes/(1024*1024))
	}

	body, contentType, err := s.buildForm(audioPath, req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("transcription api returned %d: %s", resp.StatusCode, snippet(raw))
	}
	return decodeResponse(raw, req.Language)
}

// HealthCheck reports whether the key and ffmpeg are available.
func (s *Service) HealthCheck(context.Context) pipeline.Health {
	const name = "transcriber"
	if s.apiKey == "" {
		return pipeline.Unhealthy(name, "transcription.api_key / OPENAI_API_KEY not set")
	}
	if _, err := exec.LookPath(s.ffmpeg); err != nil {
		return pipeline.Unhealthy(name, fmt.Sprintf("%s not found", s.ffmpeg))
	}
	return pipeline.Healthy(name)
}

func (s *Service) prepareAudio(ctx context.Context, mediaPath string) (string, error) {
	ext := strings.ToLower(filepath.Ext(mediaPath))
	if !videoExtensions[ext] {
		return mediaPath, nil
	}
	dest := filepath.Join(filepath.Dir(mediaPath), artifacts.AudioDir, "source.mp3")
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		dest,
	}
	if err := s.runner.Run(ctx, s.ffmpeg, args, nil); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribing", "extract audio", "", err)
	}
	return dest, nil
}

func (s *Service) buildForm(audioPath string, req pipeline.TranscribeRequest) (io.Reader, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	fields := map[string]string{
		"model":           s.model,
		"response_format": "verbose_json",
		"temperature":     strconv.FormatFloat(s.temperature, 'f', -1, 64),
		"language":        req.Language,
		"prompt":          req.Prompt,
	}
	for key, value := range fields {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if err := form.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func decodeResponse(raw []byte, hint string) (*artifacts.Transcription, error) {
	var resp verboseResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}
	out := &artifacts.Transcription{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Segments: make([]artifacts.Segment, 0, len(resp.Segments)),
	}
	if out.Language == "" {
		out.Language = hint
	}
	for _, seg := range resp.Segments {
		out.Segments = append(out.Segments, artifacts.Segment{
			ID:    seg.ID,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return out, nil
}

func snippet(raw []byte) string {
	text := strings.Join(strings.Fields(string(raw)), " ")
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
