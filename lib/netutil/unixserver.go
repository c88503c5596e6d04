// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// ConnectionHandler serves one accepted connection. The connection is
// closed after it returns.
type ConnectionHandler func(ctx context.Context, conn net.Conn)

// UnixServer is the accept loop shared by the agent and control
// sockets. The socket is created for the owning user only, and a stale
// socket file at the path is replaced.
type UnixServer struct {
	name   string
	path   string
	logger *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	// connections tracks handler goroutines so Serve can wait for them
	// before returning.
	connections sync.WaitGroup
}

// NewUnixServer creates a server for path. name labels log records.
func NewUnixServer(name, path string, logger *slog.Logger) *UnixServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &UnixServer{
		name:   name,
		path:   path,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Path returns the socket path.
func (u *UnixServer) Path() string { return u.path }

// Ready is closed once the socket is listening.
func (u *UnixServer) Ready() <-chan struct{} { return u.ready }

// Serve listens and runs handle for every connection in its own
// goroutine until ctx is cancelled. A panicking handler is logged and
// its connection closed; other connections are unaffected. On return
// every handler has finished and the socket file is gone.
func (u *UnixServer) Serve(ctx context.Context, handle ConnectionHandler) error {
	if err := os.MkdirAll(filepath.Dir(u.path), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(u.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", u.path, err)
	}

	listener, err := net.Listen("unix", u.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", u.path, err)
	}
	defer func() {
		listener.Close()
		os.Remove(u.path)
	}()
	if err := os.Chmod(u.path, 0o600); err != nil {
		return fmt.Errorf("restricting socket permissions: %w", err)
	}

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	u.logger.Info("listening", "server", u.name, "path", u.path)
	u.readyOnce.Do(func() { close(u.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			u.logger.Error("accept failed", "server", u.name, "error", err)
			continue
		}

		u.connections.Add(1)
		go func() {
			defer u.connections.Done()
			defer conn.Close()
			defer func() {
				if recovered := recover(); recovered != nil {
					u.logger.Error("connection handler panicked", "server", u.name, "panic", recovered)
				}
			}()
			handle(ctx, conn)
		}()
	}

	u.connections.Wait()
	return nil
}
