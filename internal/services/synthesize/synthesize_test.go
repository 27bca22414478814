package synthesize_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"redub/internal/artifacts"
	"redub/internal/pipeline"
	"redub/internal/services"
	"redub/internal/services/command"
	"redub/internal/services/synthesize"
	"redub/internal/testsupport"
)

type recordedCall struct {
	binary string
	args   []string
}

type fakeRunner struct {
	mu       sync.Mutex
	calls    []recordedCall
	failWith map[string]error
}

func (f *fakeRunner) Run(_ context.Context, binary string, args []string, _ func(string)) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{binary: binary, args: append([]string(nil), args...)})
	f.mu.Unlock()
	if err := f.failWith[binary]; err != nil {
		return err
	}
	dest := args[len(args)-1]
	return os.WriteFile(dest, []byte("audio"), 0o644)
}

func (f *fakeRunner) callsFor(binary string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.binary == binary {
			out = append(out, c)
		}
	}
	return out
}

func segments() []artifacts.TranslatedSegment {
	return []artifacts.TranslatedSegment{
		{ID: 0, Start: 0, End: 1.5, OriginalText: "你好", TranslatedText: "Hello"},
		{ID: 1, Start: 1.5, End: 2, OriginalText: "嗯", TranslatedText: "  "},
		{ID: 2, Start: 2, End: 4, OriginalText: "世界", TranslatedText: "World"},
	}
}

func argValue(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
		if value, ok := strings.CutPrefix(arg, flag+"="); ok {
			return value
		}
	}
	return ""
}

func TestEdgeTTSRendersNonEmptySegmentsAndCombines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{}
	svc := synthesize.New(cfg, synthesize.WithRunner(runner))

	outDir := filepath.Join(t.TempDir(), "audio")
	manifest, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{
		VideoID:      "v1",
		Segments:     segments(),
		Provider:     synthesize.ProviderEdgeTTS,
		Voice:        pipeline.VoiceOptions{VoiceType: "male", Speed: 1.2, Pitch: -0.2},
		OutputDir:    outDir,
		CombineAudio: true,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(manifest.Segments) != 2 || manifest.Segments[0].ID != 0 || manifest.Segments[1].ID != 2 {
		t.Fatalf("expected blank segment to be skipped, got %+v", manifest.Segments)
	}
	if manifest.Voice != cfg.Synthesis.MaleVoice {
		t.Fatalf("expected male voice, got %q", manifest.Voice)
	}
	if manifest.DurationSeconds != 3.5 {
		t.Fatalf("unexpected duration %v", manifest.DurationSeconds)
	}
	if manifest.CombinedAudioPath != filepath.Join(outDir, "combined.mp3") {
		t.Fatalf("unexpected combined path %q", manifest.CombinedAudioPath)
	}

	edge := runner.callsFor(cfg.Synthesis.EdgeTTSBinary)
	if len(edge) != 2 {
		t.Fatalf("expected two edge-tts calls, got %d", len(edge))
	}
	if got := argValue(edge[0].args, "--rate"); got != "+20%" {
		t.Fatalf("unexpected rate %q", got)
	}
	if got := argValue(edge[0].args, "--pitch"); got != "-10Hz" {
		t.Fatalf("unexpected pitch %q", got)
	}
	if got := argValue(edge[1].args, "--text"); got != "World" {
		t.Fatalf("unexpected text %q", got)
	}
	if len(runner.callsFor(cfg.FFmpegBinary())) != 1 {
		t.Fatal("expected one ffmpeg concat call")
	}
	if _, err := os.Stat(filepath.Join(outDir, "filelist.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected concat list to be removed, stat err=%v", err)
	}
}

func TestCombineFailureKeepsSegments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{failWith: map[string]error{cfg.FFmpegBinary(): errors.New("exit status 1")}}
	svc := synthesize.New(cfg, synthesize.WithRunner(runner))

	manifest, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{
		Segments:     segments(),
		OutputDir:    t.TempDir(),
		CombineAudio: true,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if manifest.CombinedAudioPath != "" {
		t.Fatalf("expected no combined path, got %q", manifest.CombinedAudioPath)
	}
	if len(manifest.Segments) != 2 {
		t.Fatalf("expected segments to survive, got %d", len(manifest.Segments))
	}
}

func TestEdgeTTSFailureIsExternalToolError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	runner := &fakeRunner{failWith: map[string]error{cfg.Synthesis.EdgeTTSBinary: errors.New("exit status 2")}}
	svc := synthesize.New(cfg, synthesize.WithRunner(runner))

	_, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{Segments: segments(), OutputDir: t.TempDir()})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestElevenLabsPostsPerSegment(t *testing.T) {
	var (
		mu     sync.Mutex
		voices []string
		texts  []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "el-key" {
			t.Errorf("missing api key header")
		}
		var body struct {
			Text    string `json:"text"`
			ModelID string `json:"model_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		voices = append(voices, strings.TrimPrefix(r.URL.Path, "/text-to-speech/"))
		texts = append(texts, body.Text)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Synthesis.ElevenLabsAPIKey = "el-key"
	cfg.Synthesis.ElevenLabsBaseURL = server.URL
	svc := synthesize.New(cfg, synthesize.WithRunner(&fakeRunner{}))

	outDir := t.TempDir()
	manifest, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{
		Segments:  segments(),
		Provider:  "ElevenLabs",
		Voice:     pipeline.VoiceOptions{Voice: "rachel"},
		OutputDir: outDir,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(texts) != 2 || texts[0] != "Hello" || texts[1] != "World" {
		t.Fatalf("unexpected texts %v", texts)
	}
	if voices[0] != "21m00Tcm4TlvDq8ikWAM" {
		t.Fatalf("unexpected voice id %q", voices[0])
	}
	data, err := os.ReadFile(manifest.Segments[0].AudioPath)
	if err != nil || string(data) != "ID3" {
		t.Fatalf("expected audio written, got %q err=%v", data, err)
	}
}

func TestElevenLabsWithoutKeyIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Synthesis.ElevenLabsAPIKey = ""
	svc := synthesize.New(cfg)

	_, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{
		Segments:  segments(),
		Provider:  synthesize.ProviderElevenLabs,
		OutputDir: t.TempDir(),
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestUnknownProviderIsValidationError(t *testing.T) {
	svc := synthesize.New(testsupport.NewConfig(t), synthesize.WithRunner(command.RunnerFunc(
		func(context.Context, string, []string, func(string)) error { return nil },
	)))
	_, err := svc.Synthesize(context.Background(), pipeline.SynthesisRequest{Provider: "espeak", OutputDir: t.TempDir()})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
