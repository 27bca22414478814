package queueaccess

import (
	"context"
	"fmt"
	"time"

	"redub/internal/config"
	"redub/internal/ipc"
	"redub/internal/queue"
	"redub/internal/videostatus"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	Direct bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// store access.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*queue.Store, error),
	defaultMaxAge time.Duration,
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{Access: NewIPCAccess(client), close: client.Close}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	statuses, err := videostatus.Open(context.Background(), store.DB())
	if err != nil {
		store.Close()
		return Session{}, fmt.Errorf("open video status store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store, statuses, defaultMaxAge),
		Direct: true,
		close:  store.Close,
	}, nil
}

// Open connects to the daemon socket from cfg or opens its queue database.
func Open(cfg *config.Config) (Session, error) {
	return OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(cfg.SocketPath()) },
		func() (*queue.Store, error) { return queue.Open(cfg) },
		cfg.CleanupMaxAge(),
	)
}
