package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"redub/internal/api"
	"redub/internal/daemon"
	"redub/internal/logging"
	"redub/internal/queue"
	"redub/internal/services"
)

// ServiceName is the JSON-RPC receiver name.
const ServiceName = "Redub"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer listens on path and registers the daemon service.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops accepting connections and removes the socket file. Open client
// connections end when their peers hang up.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "a stale socket may confuse the next CLI call"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) api() *api.Service { return s.daemon.Service() }

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.APIStatus(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) CreateCrawl(req CrawlRequest, resp *CreateResponse) error {
	id, err := s.api().CreateCrawlTask(s.ctx, req.URL, req.Options)
	if err != nil {
		return rpcError(err)
	}
	resp.TaskID = id
	return nil
}

func (s *service) CreateProcess(req ProcessRequest, resp *CreateResponse) error {
	id, err := s.api().CreateOrContinueProcessTask(s.ctx, req.VideoID, req.Options)
	if err != nil {
		return rpcError(err)
	}
	resp.TaskID = id
	return nil
}

func (s *service) CreateUpload(req UploadRequest, resp *CreateResponse) error {
	id, err := s.api().CreateUploadTask(s.ctx, req.VideoID, req.Metadata)
	if err != nil {
		return rpcError(err)
	}
	resp.TaskID = id
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	var (
		tasks []*queue.Task
		err   error
	)
	if videoID := strings.TrimSpace(req.VideoID); videoID != "" {
		tasks, err = s.api().ListTasksForVideo(s.ctx, videoID)
	} else {
		tasks, err = s.api().ListTasks(s.ctx, queue.Kind(strings.ToLower(strings.TrimSpace(req.Kind))))
	}
	if err != nil {
		return rpcError(err)
	}
	resp.Tasks = api.FromTasks(tasks)
	return nil
}

func (s *service) TaskShow(req TaskShowRequest, resp *TaskShowResponse) error {
	var (
		task *queue.Task
		err  error
	)
	if raw := strings.TrimSpace(req.Kind); raw != "" {
		kind, ok := queue.ParseKind(raw)
		if !ok {
			return fmt.Errorf("unknown task kind %q", raw)
		}
		task, err = s.api().GetTask(s.ctx, req.ID, kind)
	} else {
		task, err = s.api().FindTask(s.ctx, req.ID)
	}
	if err != nil {
		return rpcError(err)
	}
	resp.Task = api.FromTask(task)
	return nil
}

func (s *service) TaskRemove(req TaskRemoveRequest, resp *TaskRemoveResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("task remove requires at least one id")
	}
	result, err := s.api().RemoveTasks(s.ctx, req.IDs)
	if err != nil {
		return rpcError(err)
	}
	*resp = result
	s.logger.Info("tasks removed via IPC",
		logging.String(logging.FieldEventType, "task_remove"),
		logging.Int("removed_count", result.RemovedCount),
	)
	return nil
}

func (s *service) VideoStatus(req VideoStatusRequest, resp *VideoStatusResponse) error {
	status, err := s.api().VideoStatus(s.ctx, req.VideoID)
	if err != nil {
		return rpcError(err)
	}
	resp.Status = *status
	return nil
}

func (s *service) VideoList(_ VideoListRequest, resp *VideoListResponse) error {
	videos, err := s.api().ListVideos(s.ctx)
	if err != nil {
		return rpcError(err)
	}
	resp.Videos = videos
	return nil
}

func (s *service) VideoShow(req VideoShowRequest, resp *VideoShowResponse) error {
	video, err := s.api().GetVideo(s.ctx, req.VideoID)
	if err != nil {
		return rpcError(err)
	}
	resp.Video = *video
	return nil
}

func (s *service) QueueCleanup(req CleanupRequest, resp *CleanupResponse) error {
	removed, err := s.api().Cleanup(s.ctx, time.Duration(req.MaxAgeSeconds)*time.Second)
	if err != nil {
		return rpcError(err)
	}
	resp.Removed = removed
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = DatabaseHealthResponse{
		DBPath:           health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		SchemaVersion:    health.SchemaVersion,
		TableExists:      health.TableExists,
		IntegrityCheck:   health.IntegrityCheck,
		TotalTasks:       health.TotalTasks,
		Error:            health.Error,
	}
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	resp.Events, resp.Next = s.daemon.EventsSince(req.Since, req.VideoID)
	return nil
}

// rpcError flattens service errors to their innermost message; net/rpc only
// carries the text.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(services.Message(err))
}
