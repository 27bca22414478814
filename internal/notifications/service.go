package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"redub/internal/config"
)

const (
	userAgent      = "redub/0.1.0"
	defaultNtfyURL = "https://ntfy.sh/"
)

// Event identifies a notification class.
type Event string

const (
	EventTaskFailed      Event = "task_failed"
	EventPipelineReady   Event = "pipeline_ready"
	EventUploadCompleted Event = "upload_completed"
	EventQueueDrained    Event = "queue_drained"
	EventTest            Event = "test"
)

// Payload carries event fields.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		endpoint = defaultNtfyURL + strings.TrimPrefix(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventTaskFailed:      cfg.Notifications.TaskFailures,
			EventPipelineReady:   cfg.Notifications.PipelineReady,
			EventUploadCompleted: cfg.Notifications.PipelineReady,
			EventQueueDrained:    cfg.Notifications.QueueDrained,
			EventTest:            true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTaskFailed:
		label := strings.TrimSpace(fmt.Sprintf("%s task %s", payload.text("kind"), payload.text("taskID")))
		if video := payload.text("videoID"); video != "" {
			label += " (video " + video + ")"
		}
		return message{
			title:    "redub - Task Failed",
			body:     fmt.Sprintf("%s failed: %s", label, orDefault(payload.text("error"), "unknown error")),
			tags:     []string{"redub", "error", "alert"},
			priority: "high",
		}, true
	case EventPipelineReady:
		return message{
			title: "redub - Ready for Upload",
			body:  fmt.Sprintf("Video %s is dubbed and awaiting upload", payload.text("videoID")),
			tags:  []string{"redub", "pipeline", "completed"},
		}, true
	case EventUploadCompleted:
		body := fmt.Sprintf("Uploaded %s", orDefault(payload.text("title"), payload.text("videoID")))
		if remote := payload.text("remoteID"); remote != "" {
			body += " as " + remote
		}
		return message{
			title: "redub - Uploaded",
			body:  body,
			tags:  []string{"redub", "upload", "completed"},
		}, true
	case EventQueueDrained:
		processed, _ := payload["processed"].(int)
		failed, _ := payload["failed"].(int)
		title := "redub - Queue Drained"
		body := fmt.Sprintf("Queue drained: %d tasks completed", processed)
		if failed > 0 {
			title = "redub - Queue Drained (with errors)"
			body = fmt.Sprintf("Queue drained: %d completed, %d failed", processed, failed)
		}
		return message{title: title, body: body, tags: []string{"redub", "queue", "completed"}}, true
	case EventTest:
		return message{
			title:    "redub - Test",
			body:     "Notification system test",
			tags:     []string{"redub", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
