package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"redub/internal/artifacts"
	"redub/internal/events"
	"redub/internal/pipeline"
	"redub/internal/queue"
	"redub/internal/services"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.calls = append(l.calls, name)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeTranscriber struct {
	log  *callLog
	err  error
	last pipeline.TranscribeRequest
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req pipeline.TranscribeRequest) (*artifacts.Transcription, error) {
	f.log.add("transcribe")
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	segments := make([]artifacts.Segment, 0, 7)
	for i := 0; i < 7; i++ {
		segments = append(segments, artifacts.Segment{ID: i, Start: float64(i), End: float64(i) + 1, Text: "line"})
	}
	return &artifacts.Transcription{Text: "line", Language: req.Language, Segments: segments}, nil
}

type fakeTranslator struct {
	log     *callLog
	batches []int
}

func (f *fakeTranslator) Translate(_ context.Context, req pipeline.TranslateRequest) (*artifacts.Translation, error) {
	f.log.add("translate")
	f.batches = append(f.batches, len(req.Segments))
	out := &artifacts.Translation{SourceLanguage: req.SourceLanguage, TargetLanguage: req.TargetLanguage}
	for _, seg := range req.Segments {
		seg.TranslatedText = "EN " + seg.OriginalText
		out.Segments = append(out.Segments, seg)
	}
	return out, nil
}

type fakeSynthesizer struct {
	log  *callLog
	last pipeline.SynthesisRequest
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req pipeline.SynthesisRequest) (*artifacts.SynthesisManifest, error) {
	f.log.add("synthesize")
	f.last = req
	m := &artifacts.SynthesisManifest{Provider: req.Provider}
	for _, seg := range req.Segments {
		m.Segments = append(m.Segments, artifacts.SynthesizedSegment{ID: seg.ID, AudioPath: "clip.mp3", Start: seg.Start, End: seg.End})
	}
	return m, nil
}

type harness struct {
	store       *queue.Store
	statuses    *videostatus.Store
	stream      *events.Stream
	artifacts   *artifacts.Store
	log         *callLog
	transcriber *fakeTranscriber
	translator  *fakeTranslator
	synthesizer *fakeSynthesizer
	controller  *pipeline.Controller
	progress    []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	statuses := testsupport.MustOpenStatuses(t, store)
	stream := events.NewStream(statuses, nil)
	t.Cleanup(stream.Close)

	log := &callLog{}
	h := &harness{
		store:       store,
		statuses:    statuses,
		stream:      stream,
		artifacts:   artifacts.NewStore(cfg.Paths.StagingDir),
		log:         log,
		transcriber: &fakeTranscriber{log: log},
		translator:  &fakeTranslator{log: log},
		synthesizer: &fakeSynthesizer{log: log},
	}
	controller, err := pipeline.New(pipeline.Options{
		Tasks:       store,
		Statuses:    statuses,
		Events:      stream,
		Artifacts:   h.artifacts,
		Transcriber: h.transcriber,
		Translator:  h.translator,
		Synthesizer: h.synthesizer,
		Defaults:    pipeline.Defaults{TranslationProvider: "openai", SynthesisProvider: "edge-tts", BatchSize: 5},
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	h.controller = controller
	return h
}

func (h *harness) addTask(t *testing.T, videoID string, opts queue.ProcessOptions) *queue.Task {
	t.Helper()
	payload, err := json.Marshal(queue.ProcessPayload{VideoID: videoID, Options: opts})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return testsupport.AddTask(t, h.store, &queue.Task{Kind: queue.KindProcess, VideoID: videoID, Payload: payload})
}

func (h *harness) seedProgress(t *testing.T, videoID string, stage videostatus.Stage, progress int) {
	t.Helper()
	if _, err := h.statuses.Update(context.Background(), videoID, videostatus.StagePatch(stage, progress, "seeded")); err != nil {
		t.Fatalf("seed status: %v", err)
	}
}

func (h *harness) writeMedia(t *testing.T, videoID string) {
	t.Helper()
	testsupport.WriteFile(t, h.artifacts.MediaPath(videoID), 1024)
}

func (h *harness) seedTranscript(t *testing.T, videoID string) {
	t.Helper()
	tr := &artifacts.Transcription{Text: "seeded", Segments: []artifacts.Segment{{ID: 0, Start: 0, End: 1, Text: "seeded"}}}
	if err := h.artifacts.SaveTranscription(videoID, tr); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}
}

func (h *harness) status(t *testing.T, videoID string) *videostatus.Status {
	t.Helper()
	status, err := h.statuses.Get(context.Background(), videoID)
	if err != nil || status == nil {
		t.Fatalf("Get status = %#v, %v", status, err)
	}
	return status
}

func equalCalls(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFreshRunExecutesAllStagesAndAwaitsNextAction(t *testing.T) {
	h := newHarness(t)
	h.writeMedia(t, "v1")
	task := h.addTask(t, "v1", queue.ProcessOptions{TargetLanguage: "english", CombineAudio: true})

	if err := h.controller.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	calls := h.log.snapshot()
	if !equalCalls(calls, "transcribe", "translate", "translate", "synthesize") {
		t.Fatalf("unexpected calls %v", calls)
	}
	if h.transcriber.last.Language != "en" {
		t.Fatalf("expected english hint, got %q", h.transcriber.last.Language)
	}
	if len(h.translator.batches) != 2 || h.translator.batches[0] != 5 || h.translator.batches[1] != 2 {
		t.Fatalf("expected batches of 5 then 2, got %v", h.translator.batches)
	}
	if !h.synthesizer.last.CombineAudio || h.synthesizer.last.Provider != "edge-tts" {
		t.Fatalf("unexpected synthesis request %#v", h.synthesizer.last)
	}

	status := h.status(t, "v1")
	if status.Stage != videostatus.StageAwaitingNextAction || status.Progress != 100 {
		t.Fatalf("unexpected terminal status %#v", status)
	}
	if status.Message != "ready for upload" || status.EndTime == nil || status.Error != "" {
		t.Fatalf("unexpected terminal status %#v", status)
	}

	translation, err := h.artifacts.LoadTranslation("v1")
	if err != nil {
		t.Fatalf("LoadTranslation: %v", err)
	}
	if translation.TargetLanguage != "en-US" || translation.SourceLanguage != "zh-CN" || len(translation.Segments) != 7 {
		t.Fatalf("unexpected translation %#v", translation)
	}
	if _, err := os.Stat(h.artifacts.Path("v1", artifacts.TranscriptSRTFile)); err != nil {
		t.Fatalf("expected srt export: %v", err)
	}
}

func TestProgressNeverRegressesDuringRun(t *testing.T) {
	h := newHarness(t)
	h.writeMedia(t, "v1")
	task := h.addTask(t, "v1", queue.ProcessOptions{})

	updates, cancel := h.stream.Subscribe(64)
	defer cancel()
	if err := h.controller.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	cancel()

	last := -1
	for evt := range updates {
		if evt.Status.Progress < last {
			t.Fatalf("progress regressed from %d to %d", last, evt.Status.Progress)
		}
		last = evt.Status.Progress
	}
	if last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
}

func TestResumeSkipsCompletedTranscription(t *testing.T) {
	h := newHarness(t)
	h.seedProgress(t, "v1", videostatus.StageTranslating, 55)
	h.seedTranscript(t, "v1")
	task := h.addTask(t, "v1", queue.ProcessOptions{})

	if err := h.controller.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	calls := h.log.snapshot()
	if !equalCalls(calls, "translate", "synthesize") {
		t.Fatalf("expected translate and synthesize only, got %v", calls)
	}
	translation, err := h.artifacts.LoadTranslation("v1")
	if err != nil || translation.Segments[0].OriginalText != "seeded" {
		t.Fatalf("translation should come from the reloaded transcript: %#v, %v", translation, err)
	}
	if status := h.status(t, "v1"); status.Stage != videostatus.StageAwaitingNextAction {
		t.Fatalf("unexpected final stage %s", status.Stage)
	}
}

func TestForcedRetryRerunsEveryStage(t *testing.T) {
	h := newHarness(t)
	h.writeMedia(t, "v1")
	h.seedProgress(t, "v1", videostatus.StageEditing, 90)
	task := h.addTask(t, "v1", queue.ProcessOptions{RetryFromStep: "transcribing"})

	updates, cancel := h.stream.Subscribe(64)
	defer cancel()
	if err := h.controller.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	cancel()

	calls := h.log.snapshot()
	if !equalCalls(calls, "transcribe", "translate", "translate", "synthesize") {
		t.Fatalf("unexpected calls %v", calls)
	}
	first, ok := <-updates
	if !ok || first.Status.Stage != videostatus.StageTranscribing || first.Status.Progress != 0 {
		t.Fatalf("expected retry reset to transcribing/0, got %#v", first.Status)
	}
	var stages []videostatus.Stage
	for evt := range updates {
		if len(stages) == 0 || stages[len(stages)-1] != evt.Status.Stage {
			stages = append(stages, evt.Status.Stage)
		}
	}
	want := []videostatus.Stage{
		videostatus.StageTranscribing,
		videostatus.StageTranslating,
		videostatus.StageSynthesizing,
		videostatus.StageEditing,
		videostatus.StageAwaitingNextAction,
	}
	if len(stages) != len(want) {
		t.Fatalf("unexpected stage order %v", stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("unexpected stage order %v", stages)
		}
	}
}

func TestRetryFromTranslatingReloadsTranscript(t *testing.T) {
	h := newHarness(t)
	h.seedProgress(t, "v1", videostatus.StageError, 90)
	h.seedTranscript(t, "v1")
	task := h.addTask(t, "v1", queue.ProcessOptions{RetryFromStep: "translating"})

	if err := h.controller.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls := h.log.snapshot(); !equalCalls(calls, "translate", "synthesize") {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestMissingTranslationArtifactAbortsBeforeSynthesis(t *testing.T) {
	h := newHarness(t)
	h.seedProgress(t, "v1", videostatus.StageSynthesizing, 70)
	h.seedTranscript(t, "v1")
	task := h.addTask(t, "v1", queue.ProcessOptions{})

	err := h.controller.Process(context.Background(), task.ID)
	if !errors.Is(err, services.ErrMissingArtifact) {
		t.Fatalf("expected missing artifact error, got %v", err)
	}
	if calls := h.log.snapshot(); len(calls) != 0 {
		t.Fatalf("no collaborator should run, got %v", calls)
	}
	status := h.status(t, "v1")
	if status.Stage != videostatus.StageError || !strings.Contains(status.Error, "translation") {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.Progress != 70 {
		t.Fatalf("progress should be unchanged, got %d", status.Progress)
	}
}

func TestCollaboratorFailureSurfacesMessage(t *testing.T) {
	h := newHarness(t)
	h.writeMedia(t, "v1")
	h.transcriber.err = errors.New("network timeout")
	task := h.addTask(t, "v1", queue.ProcessOptions{})

	err := h.controller.Process(context.Background(), task.ID)
	if !errors.Is(err, services.ErrCollaborator) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if services.Message(err) != "network timeout" {
		t.Fatalf("unexpected message %q", services.Message(err))
	}
	status := h.status(t, "v1")
	if status.Stage != videostatus.StageError || status.Error != "network timeout" {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.Progress != 5 {
		t.Fatalf("expected progress to stay at the last persisted value 5, got %d", status.Progress)
	}
	if status.EndTime == nil {
		t.Fatal("expected end time on failure")
	}
}

func TestMissingMediaIsValidationError(t *testing.T) {
	h := newHarness(t)
	task := h.addTask(t, "v1", queue.ProcessOptions{})

	err := h.controller.Process(context.Background(), task.ID)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if status := h.status(t, "v1"); status.Stage != videostatus.StageError {
		t.Fatalf("unexpected stage %s", status.Stage)
	}
}

func TestUnknownRetryStepRejected(t *testing.T) {
	h := newHarness(t)
	task := h.addTask(t, "v1", queue.ProcessOptions{RetryFromStep: "mastering"})
	if err := h.controller.Process(context.Background(), task.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessUnknownTask(t *testing.T) {
	h := newHarness(t)
	if err := h.controller.Process(context.Background(), "task_missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHealthCheckDefaultsToReady(t *testing.T) {
	h := newHarness(t)
	for _, health := range h.controller.HealthCheck(context.Background()) {
		if !health.Ready {
			t.Fatalf("unexpected unhealthy collaborator %#v", health)
		}
	}
}
