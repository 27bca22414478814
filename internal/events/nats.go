package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"redub/internal/logging"
)

// Publisher is the subset of *nats.Conn used by the NATS observer.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient owns a NATS connection used for status fan-out.
type NATSClient struct{ nc *nats.Conn }

// ConnectNATS dials url with unlimited reconnects.
func ConnectNATS(url string) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.Name("redub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSClient{nc: nc}, nil
}

// Conn exposes the underlying connection.
func (c *NATSClient) Conn() *nats.Conn { return c.nc }

// Close drains pending publishes and closes the connection.
func (c *NATSClient) Close() {
	if c != nil && c.nc != nil {
		_ = c.nc.Drain()
	}
}

// NATSObserver publishes each status event as JSON. Events for video v go to
// <subject>.<v>.
type NATSObserver struct {
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

// NewNATSObserver builds an observer publishing under subject.
func NewNATSObserver(publisher Publisher, subject string, logger *slog.Logger) *NATSObserver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSObserver{
		publisher: publisher,
		subject:   strings.TrimSuffix(strings.TrimSpace(subject), "."),
		logger:    logging.NewComponentLogger(logger, "events-nats"),
	}
}

// Subject returns the subject an event for videoID is published on.
func (o *NATSObserver) Subject(videoID string) string {
	token := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(strings.TrimSpace(videoID))
	if token == "" {
		return o.subject
	}
	return o.subject + "." + token
}

// Observe implements Observer.
func (o *NATSObserver) Observe(ctx context.Context, event StatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		o.logger.WarnContext(ctx, "encode status event failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_publish_failed"),
			logging.String(logging.FieldErrorHint, "report this as a bug"),
			logging.String(logging.FieldImpact, "remote observers miss this status change"),
		)
		return
	}
	if err := o.publisher.Publish(o.Subject(event.VideoID), data); err != nil {
		o.logger.WarnContext(ctx, "publish status event failed",
			logging.String(logging.FieldVideoID, event.VideoID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "status_publish_failed"),
			logging.String(logging.FieldErrorHint, "check events.nats_url and the NATS server"),
			logging.String(logging.FieldImpact, "remote observers miss this status change"),
		)
	}
}
