package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"redub/internal/config"
	"redub/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTaskFailed, notifications.Payload{"taskID": "t1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title, body, tags, priority string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ch <- captured{
			title:    r.Header.Get("Title"),
			body:     string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "task failed",
			event: notifications.EventTaskFailed,
			payload: notifications.Payload{
				"kind":    "process",
				"taskID":  "task_1",
				"videoID": "v1",
				"error":   errors.New("network timeout"),
			},
			expectTitle:    "redub - Task Failed",
			expectMessage:  "process task task_1 (video v1) failed: network timeout",
			expectTags:     "redub,error,alert",
			expectPriority: "high",
		},
		{
			name:          "pipeline ready",
			event:         notifications.EventPipelineReady,
			payload:       notifications.Payload{"videoID": "v2"},
			expectTitle:   "redub - Ready for Upload",
			expectMessage: "Video v2 is dubbed and awaiting upload",
			expectTags:    "redub,pipeline,completed",
		},
		{
			name:          "queue drained with failures",
			event:         notifications.EventQueueDrained,
			payload:       notifications.Payload{"processed": 3, "failed": 1},
			expectTitle:   "redub - Queue Drained (with errors)",
			expectMessage: "Queue drained: 3 completed, 1 failed",
			expectTags:    "redub,queue,completed",
		},
		{
			name:          "upload completed",
			event:         notifications.EventUploadCompleted,
			payload:       notifications.Payload{"title": "Cat video", "remoteID": "BV1xx"},
			expectTitle:   "redub - Uploaded",
			expectMessage: "Uploaded Cat video as BV1xx",
			expectTags:    "redub,upload,completed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, ch := newCaptureServer(t, http.StatusOK)
			cfg := config.Default()
			cfg.Notifications.NtfyTopic = srv.URL
			cfg.Notifications.QueueDrained = true
			svc := notifications.NewService(&cfg)

			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("Publish: %v", err)
			}
			got := <-ch
			if got.title != tc.expectTitle || got.body != tc.expectMessage || got.tags != tc.expectTags || got.priority != tc.expectPriority {
				t.Fatalf("unexpected notification %#v", got)
			}
		})
	}
}

func TestDisabledEventIsNotSent(t *testing.T) {
	srv, ch := newCaptureServer(t, http.StatusOK)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	cfg.Notifications.QueueDrained = false
	svc := notifications.NewService(&cfg)

	if err := svc.Publish(context.Background(), notifications.EventQueueDrained, notifications.Payload{"processed": 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-ch:
		t.Fatalf("disabled event was sent: %#v", got)
	default:
	}
}

func TestNtfyErrorStatusIsReturned(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusForbidden)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
