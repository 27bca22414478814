package transcribe_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"redub/internal/pipeline"
	"redub/internal/services"
	"redub/internal/services/command"
	"redub/internal/services/transcribe"
	"redub/internal/testsupport"
)

func fakeFFmpeg(t *testing.T, calls *[]string) command.Runner {
	t.Helper()
	return command.RunnerFunc(func(_ context.Context, binary string, args []string, _ func(string)) error {
		*calls = append(*calls, binary)
		dest := args[len(args)-1]
		return os.WriteFile(dest, []byte("mp3"), 0o644)
	})
}

func TestTranscribeExtractsAudioAndParsesSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("language"); got != "zh" {
			t.Errorf("unexpected language %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("unexpected response format %q", got)
		}
		if _, header, err := r.FormFile("file"); err != nil || header.Filename != "source.mp3" {
			t.Errorf("expected source.mp3 upload, got %v %v", header, err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"text":     "你好 世界",
			"duration": 3.5,
			"segments": []map[string]any{
				{"id": 0, "start": 0.0, "end": 1.5, "text": " 你好 "},
				{"id": 1, "start": 1.5, "end": 3.5, "text": "世界"},
			},
		})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcription.APIKey = "key"
	cfg.Transcription.BaseURL = server.URL
	var calls []string
	svc := transcribe.New(cfg, transcribe.WithRunner(fakeFFmpeg(t, &calls)))

	media := filepath.Join(t.TempDir(), "v1", "video.mp4")
	testsupport.WriteFile(t, media, 128)
	result, err := svc.Transcribe(context.Background(), pipeline.TranscribeRequest{VideoID: "v1", MediaPath: media, Language: "zh"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %v", calls)
	}
	if len(result.Segments) != 2 || result.Segments[0].Text != "你好" || result.Segments[1].End != 3.5 {
		t.Fatalf("unexpected segments: %+v", result.Segments)
	}
	if result.Language != "zh" {
		t.Fatalf("expected language hint fallback, got %q", result.Language)
	}
}

func TestTranscribeSurfacesProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid file"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Transcription.APIKey = "key"
	cfg.Transcription.BaseURL = server.URL
	svc := transcribe.New(cfg)

	audio := filepath.Join(t.TempDir(), "clip.mp3")
	testsupport.WriteFile(t, audio, 16)
	_, err := svc.Transcribe(context.Background(), pipeline.TranscribeRequest{MediaPath: audio})
	if err == nil || !strings.Contains(err.Error(), "invalid file") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transcription.APIKey = ""
	svc := transcribe.New(cfg)
	_, err := svc.Transcribe(context.Background(), pipeline.TranscribeRequest{MediaPath: "/nope.mp3"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if health := svc.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without key")
	}
}
