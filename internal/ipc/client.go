package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start asks the daemon to start its scheduler and HTTP API.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop asks the daemon to stop its scheduler and HTTP API.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// CreateCrawl enqueues a share-link download.
func (c *Client) CreateCrawl(req CrawlRequest) (*CreateResponse, error) {
	return call[CrawlRequest, CreateResponse](c, "CreateCrawl", req)
}

// CreateProcess creates or continues pipeline processing.
func (c *Client) CreateProcess(req ProcessRequest) (*CreateResponse, error) {
	return call[ProcessRequest, CreateResponse](c, "CreateProcess", req)
}

// CreateUpload enqueues publication of a processed video.
func (c *Client) CreateUpload(req UploadRequest) (*CreateResponse, error) {
	return call[UploadRequest, CreateResponse](c, "CreateUpload", req)
}

// TaskList lists tasks filtered by kind or video.
func (c *Client) TaskList(req TaskListRequest) (*TaskListResponse, error) {
	return call[TaskListRequest, TaskListResponse](c, "TaskList", req)
}

// TaskShow fetches a single task.
func (c *Client) TaskShow(id, kind string) (*TaskShowResponse, error) {
	return call[TaskShowRequest, TaskShowResponse](c, "TaskShow", TaskShowRequest{ID: id, Kind: kind})
}

// TaskRemove deletes tasks by id.
func (c *Client) TaskRemove(ids []string) (*TaskRemoveResponse, error) {
	return call[TaskRemoveRequest, TaskRemoveResponse](c, "TaskRemove", TaskRemoveRequest{IDs: ids})
}

// VideoStatus fetches the pipeline status of a video.
func (c *Client) VideoStatus(videoID string) (*VideoStatusResponse, error) {
	return call[VideoStatusRequest, VideoStatusResponse](c, "VideoStatus", VideoStatusRequest{VideoID: videoID})
}

// VideoList fetches the video catalog.
func (c *Client) VideoList() (*VideoListResponse, error) {
	return call[VideoListRequest, VideoListResponse](c, "VideoList", VideoListRequest{})
}

// VideoShow fetches one catalog entry.
func (c *Client) VideoShow(videoID string) (*VideoShowResponse, error) {
	return call[VideoShowRequest, VideoShowResponse](c, "VideoShow", VideoShowRequest{VideoID: videoID})
}

// QueueCleanup purges finished tasks older than maxAge.
func (c *Client) QueueCleanup(maxAge time.Duration) (*CleanupResponse, error) {
	return call[CleanupRequest, CleanupResponse](c, "QueueCleanup", CleanupRequest{MaxAgeSeconds: int64(maxAge / time.Second)})
}

// DatabaseHealth fetches queue database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthRequest, DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// Events polls status events after since.
func (c *Client) Events(since int64, videoID string) (*EventsResponse, error) {
	return call[EventsRequest, EventsResponse](c, "Events", EventsRequest{Since: since, VideoID: videoID})
}
