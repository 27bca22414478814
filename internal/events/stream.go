package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"redub/internal/logging"
	"redub/internal/videostatus"
)

// StatusEvent is one applied status patch.
type StatusEvent struct {
	Seq     int64               `json:"seq"`
	At      time.Time           `json:"at"`
	VideoID string              `json:"videoId"`
	TaskID  string              `json:"taskId,omitempty"`
	Patch   videostatus.Patch   `json:"patch"`
	Status  *videostatus.Status `json:"status,omitempty"`
}

// Writer persists a patch and returns the merged record.
type Writer interface {
	Update(ctx context.Context, videoID string, patch videostatus.Patch) (*videostatus.Status, error)
}

// Observer receives events after they were persisted.
type Observer interface {
	Observe(ctx context.Context, event StatusEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event StatusEvent)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, event StatusEvent) { f(ctx, event) }

const (
	defaultHistory   = 500
	observerBacklog  = 64
	subscriberBuffer = 32
)

// Stream sequences status events, persists them through its writer and
// fans them out.
type Stream struct {
	writer Writer
	logger *slog.Logger
	now    func() time.Time

	// publishMu orders writer calls with sequence numbers.
	publishMu sync.Mutex

	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	history   []StatusEvent
	subs      map[int]chan StatusEvent
	nextSub   int
	dropped   int64
	closed    bool
	wg        sync.WaitGroup
}

// NewStream builds a stream persisting through writer.
func NewStream(writer Writer, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Stream{
		writer:    writer,
		logger:    logging.NewComponentLogger(logger, "events"),
		now:       time.Now,
		maxEvents: defaultHistory,
		history:   make([]StatusEvent, 0, defaultHistory),
		subs:      make(map[int]chan StatusEvent),
	}
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event stream closed")

// Publish persists patch for videoID and notifies observers. The writer error,
// if any, is returned and no observer sees the event. Sequence numbers follow
// the order in which patches reached the writer.
func (s *Stream) Publish(ctx context.Context, videoID, taskID string, patch videostatus.Patch) (*videostatus.Status, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if s.writer == nil {
		return nil, errors.New("event stream has no writer")
	}

	status, err := s.writer.Update(ctx, videoID, patch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSeq++
	event := StatusEvent{
		Seq:     s.nextSeq,
		At:      s.now().UTC(),
		VideoID: videoID,
		TaskID:  taskID,
		Patch:   patch,
		Status:  status,
	}
	s.history = append(s.history, event)
	if len(s.history) > s.maxEvents {
		trim := len(s.history) - s.maxEvents
		s.history = append([]StatusEvent(nil), s.history[trim:]...)
	}
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			s.dropped++
		}
	}
	s.mu.Unlock()
	return status, nil
}

// Since returns retained events with sequence strictly greater than seq.
func (s *Stream) Since(seq int64) []StatusEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return nil
	}
	out := make([]StatusEvent, 0, len(s.history))
	for _, event := range s.history {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Dropped reports how many deliveries were skipped because a subscriber was
// full.
func (s *Stream) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

// Subscribe returns a buffered channel of future events and a cancel func.
func (s *Stream) Subscribe(buffer int) (<-chan StatusEvent, func()) {
	if buffer <= 0 {
		buffer = subscriberBuffer
	}
	ch := make(chan StatusEvent, buffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing)
			}
			s.mu.Unlock()
		})
	}
}

// Attach runs observer on its own goroutine until the stream closes.
func (s *Stream) Attach(ctx context.Context, name string, observer Observer) {
	ch, _ := s.Subscribe(observerBacklog)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("status observer panicked",
					logging.String("observer", name),
					logging.Any("panic", r),
					logging.String(logging.FieldEventType, "observer_panic"),
					logging.String(logging.FieldErrorHint, "inspect the observer implementation"),
					logging.String(logging.FieldImpact, "observer stopped receiving status events"),
				)
			}
		}()
		for event := range ch {
			observer.Observe(ctx, event)
		}
	}()
}

// Close detaches all subscribers and waits for attached observers to drain.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
