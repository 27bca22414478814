package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"redub/internal/api"
	"redub/internal/events"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:   strings.TrimSpace(bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.handleDeleteTask)
	mux.HandleFunc("POST /api/crawl", s.handleCrawl)
	mux.HandleFunc("POST /api/process/{videoId}", s.handleProcess)
	mux.HandleFunc("POST /api/upload/{videoId}", s.handleUpload)
	mux.HandleFunc("GET /api/videos", s.handleListVideos)
	mux.HandleFunc("GET /api/videos/{videoId}", s.handleGetVideo)
	mux.HandleFunc("GET /api/videos/{videoId}/status", s.handleVideoStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.listener = listener
	s.server = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_server_failed"),
			)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown(server)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server == nil {
		return
	}
	shutdown(s.server)
	s.server = nil
	s.listener = nil
}

func shutdown(server *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, APIStatus(s.daemon.Status(r.Context())))
}

func (s *apiServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	svc := s.daemon.service
	query := r.URL.Query()
	var (
		tasks []*queue.Task
		err   error
	)
	if videoID := strings.TrimSpace(query.Get("videoId")); videoID != "" {
		tasks, err = svc.ListTasksForVideo(r.Context(), videoID)
	} else {
		var kind queue.Kind
		if raw := strings.TrimSpace(query.Get("kind")); raw != "" {
			parsed, ok := queue.ParseKind(raw)
			if !ok {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown task kind %q", raw))
				return
			}
			kind = parsed
		}
		tasks, err = svc.ListTasks(r.Context(), kind)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: api.FromTasks(tasks)})
}

func (s *apiServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		task *queue.Task
		err  error
	)
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		kind, ok := queue.ParseKind(raw)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown task kind %q", raw))
			return
		}
		task, err = s.daemon.service.GetTask(r.Context(), id, kind)
	} else {
		task, err = s.daemon.service.FindTask(r.Context(), id)
	}
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{Task: api.FromTask(task)})
}

func (s *apiServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.service.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type crawlRequest struct {
	URL     string             `json:"url"`
	Options queue.CrawlOptions `json:"options"`
}

func (s *apiServer) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.daemon.service.CreateCrawlTask(r.Context(), req.URL, req.Options)
	s.writeCreated(w, id, err)
}

type processRequest struct {
	Options queue.ProcessOptions `json:"options"`
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.daemon.service.CreateOrContinueProcessTask(r.Context(), r.PathValue("videoId"), req.Options)
	s.writeCreated(w, id, err)
}

type uploadRequest struct {
	Metadata queue.UploadMetadata `json:"metadata"`
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.daemon.service.CreateUploadTask(r.Context(), r.PathValue("videoId"), req.Metadata)
	s.writeCreated(w, id, err)
}

func (s *apiServer) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.service.VideoStatus(r.Context(), r.PathValue("videoId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoStatusResponse{Status: *status})
}

func (s *apiServer) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.daemon.service.ListVideos(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoListResponse{Videos: videos})
}

func (s *apiServer) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.daemon.service.GetVideo(r.Context(), r.PathValue("videoId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VideoResponse{Video: *video})
}

type eventsResponse struct {
	Events []events.StatusEvent `json:"events"`
	Next   int64                `json:"next"`
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	list, next := s.daemon.EventsSince(since, r.URL.Query().Get("videoId"))
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: list, Next: next})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) writeCreated(w http.ResponseWriter, id string, err error) {
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.CreateTaskResponse{TaskID: id})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	}
	s.writeError(w, status, services.Message(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
