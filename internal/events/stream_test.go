package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"redub/internal/events"
	"redub/internal/testsupport"
	"redub/internal/videostatus"
)

type failingWriter struct{}

func (failingWriter) Update(context.Context, string, videostatus.Patch) (*videostatus.Status, error) {
	return nil, errors.New("disk full")
}

func TestPublishWritesBeforeReturning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	statuses := testsupport.MustOpenStatuses(t, testsupport.MustOpenStore(t, cfg))
	stream := events.NewStream(statuses, nil)
	defer stream.Close()
	ctx := context.Background()

	if _, err := stream.Publish(ctx, "v1", "task_1", videostatus.StagePatch(videostatus.StageTranscribing, 5, "preparing transcription")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := statuses.Get(ctx, "v1")
	if err != nil || got == nil {
		t.Fatalf("Get = %#v, %v", got, err)
	}
	if got.Stage != videostatus.StageTranscribing || got.Progress != 5 {
		t.Fatalf("write not visible after publish: %#v", got)
	}

	history := stream.Since(0)
	if len(history) != 1 || history[0].Seq != 1 || history[0].Status == nil {
		t.Fatalf("unexpected history %#v", history)
	}
	if len(stream.Since(1)) != 0 {
		t.Fatal("expected no events after seq 1")
	}
}

func TestWriterFailureSkipsObservers(t *testing.T) {
	stream := events.NewStream(failingWriter{}, nil)
	defer stream.Close()
	ch, cancel := stream.Subscribe(1)
	defer cancel()

	if _, err := stream.Publish(context.Background(), "v1", "", videostatus.Patch{}); err == nil {
		t.Fatal("expected writer error")
	}
	select {
	case evt := <-ch:
		t.Fatalf("observer received failed event %#v", evt)
	default:
	}
	if len(stream.Since(0)) != 0 {
		t.Fatal("failed publish must not be recorded")
	}
}

// countingWriter stamps each write with its arrival order.
type countingWriter struct {
	mu     sync.Mutex
	writes int
}

func (w *countingWriter) Update(_ context.Context, videoID string, _ videostatus.Patch) (*videostatus.Status, error) {
	w.mu.Lock()
	w.writes++
	n := w.writes
	w.mu.Unlock()
	runtime.Gosched()
	return &videostatus.Status{VideoID: videoID, Message: strconv.Itoa(n)}, nil
}

func TestConcurrentPublishersSequenceInWriteOrder(t *testing.T) {
	stream := events.NewStream(&countingWriter{}, nil)
	defer stream.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := stream.Publish(context.Background(), "v1", "", videostatus.Patch{}); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	history := stream.Since(0)
	if len(history) != 320 {
		t.Fatalf("expected 320 events, got %d", len(history))
	}
	for i, event := range history {
		if event.Seq != int64(i+1) || event.Status.Message != strconv.Itoa(i+1) {
			t.Fatalf("event %d: seq=%d written as %s", i, event.Seq, event.Status.Message)
		}
	}
}

func TestObserversReceiveInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	statuses := testsupport.MustOpenStatuses(t, testsupport.MustOpenStore(t, cfg))
	stream := events.NewStream(statuses, nil)

	var (
		mu    sync.Mutex
		first []int
		done  = make(chan struct{})
	)
	stream.Attach(context.Background(), "recorder", events.ObserverFunc(func(_ context.Context, evt events.StatusEvent) {
		mu.Lock()
		first = append(first, evt.Status.Progress)
		if len(first) == 3 {
			close(done)
		}
		mu.Unlock()
	}))
	second, cancel := stream.Subscribe(8)
	defer cancel()

	for _, progress := range []int{5, 35, 40} {
		p := progress
		if _, err := stream.Publish(context.Background(), "v1", "", videostatus.Patch{Progress: &p}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("attached observer did not receive events")
	}
	stream.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(first) != 3 || first[0] != 5 || first[1] != 35 || first[2] != 40 {
		t.Fatalf("unexpected observer order %v", first)
	}
	var seqs []int64
	for evt := range second {
		seqs = append(seqs, evt.Seq)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("unexpected subscriber seqs %v", seqs)
	}
	if _, err := stream.Publish(context.Background(), "v1", "", videostatus.Patch{}); !errors.Is(err, events.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	statuses := testsupport.MustOpenStatuses(t, testsupport.MustOpenStore(t, cfg))
	stream := events.NewStream(statuses, nil)
	defer stream.Close()
	_, cancel := stream.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := stream.Publish(context.Background(), "v1", "", videostatus.Patch{}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if stream.Dropped() != 2 {
		t.Fatalf("expected 2 dropped deliveries, got %d", stream.Dropped())
	}
}

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func TestNATSObserverPublishesJSON(t *testing.T) {
	pub := &recordingPublisher{}
	observer := events.NewNATSObserver(pub, "redub.video.status.", nil)

	stage := videostatus.StageTranslating
	observer.Observe(context.Background(), events.StatusEvent{
		Seq:     7,
		VideoID: "abc.123",
		Patch:   videostatus.Patch{Stage: &stage},
		Status:  &videostatus.Status{VideoID: "abc.123", Stage: stage, Progress: 42},
	})

	if len(pub.subjects) != 1 || pub.subjects[0] != "redub.video.status.abc_123" {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	var decoded map[string]any
	if err := json.Unmarshal(pub.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["videoId"] != "abc.123" || decoded["seq"].(float64) != 7 {
		t.Fatalf("unexpected payload %s", pub.payloads[0])
	}
	if !strings.Contains(string(pub.payloads[0]), `"stage":"translating"`) {
		t.Fatalf("payload missing stage: %s", pub.payloads[0])
	}

	pub.err = errors.New("no responders")
	observer.Observe(context.Background(), events.StatusEvent{VideoID: "v2"})
	if len(pub.subjects) != 2 {
		t.Fatal("expected a publish attempt despite error")
	}
}
