// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/keyward-dev/keyward/lib/agentproto"
	"github.com/keyward-dev/keyward/lib/netutil"
	"github.com/keyward-dev/keyward/lib/sshwire"
)

// writeTimeout bounds how long one response may take to write. There is
// no read timeout: agent clients hold connections open between requests.
const writeTimeout = 10 * time.Second

// Handler answers one decoded request. *Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, message agentproto.Message) agentproto.Message
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// SocketPath is where the agent listens. Required.
	SocketPath string

	// Handler answers requests. Required.
	Handler Handler

	// MaxFrameLength is the largest request payload accepted. A larger
	// declared length closes the connection. Defaults to
	// sshwire.MaxAgentFrameLength.
	MaxFrameLength uint32

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Stats is a snapshot of the server's counters.
type Stats struct {
	ActiveConnections uint64 `cbor:"active_connections"`
	TotalConnections  uint64 `cbor:"total_connections"`
	Requests          uint64 `cbor:"requests"`
	Failures          uint64 `cbor:"failures"`
	MalformedRequests uint64 `cbor:"malformed_requests"`
}

// Server serves the agent protocol on a Unix socket.
type Server struct {
	socket         *netutil.UnixServer
	handler        Handler
	maxFrameLength uint32
	logger         *slog.Logger

	active    atomic.Int64
	total     atomic.Uint64
	requests  atomic.Uint64
	failures  atomic.Uint64
	malformed atomic.Uint64
}

// NewServer creates a server. Call Serve to start listening.
func NewServer(config ServerConfig) *Server {
	if config.MaxFrameLength == 0 {
		config.MaxFrameLength = sshwire.MaxAgentFrameLength
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		socket:         netutil.NewUnixServer("agent", config.SocketPath, config.Logger),
		handler:        config.Handler,
		maxFrameLength: config.MaxFrameLength,
		logger:         config.Logger,
	}
}

// Ready is closed once the socket is listening.
func (s *Server) Ready() <-chan struct{} { return s.socket.Ready() }

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socket.Path() }

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveConnections: uint64(s.active.Load()),
		TotalConnections:  s.total.Load(),
		Requests:          s.requests.Load(),
		Failures:          s.failures.Load(),
		MalformedRequests: s.malformed.Load(),
	}
}

// Serve listens on the socket and serves connections until ctx is
// cancelled. It then closes every open connection, waits for their
// goroutines, removes the socket file and returns.
//
// A stale socket file at the path is removed first. The socket is made
// accessible to the owning user only.
func (s *Server) Serve(ctx context.Context) error {
	return s.socket.Serve(ctx, s.handleConnection)
}

// handleConnection serves one client until it disconnects, the stream
// breaks, or the server shuts down.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	s.active.Add(1)
	s.total.Add(1)
	defer s.active.Add(-1)

	connectionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing the connection when its context ends unblocks the reader
	// on server shutdown and on a broken stream.
	stopClose := context.AfterFunc(connectionCtx, func() { conn.Close() })
	defer stopClose()

	frames := make(chan []byte)
	go s.readFrames(connectionCtx, cancel, conn, frames)

	for payload := range frames {
		response := s.respond(connectionCtx, payload)

		// The client is gone: the response has nowhere to go.
		if connectionCtx.Err() != nil {
			return
		}

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sshwire.WriteFrame(conn, agentproto.Marshal(response)); err != nil {
			if netutil.IsExpectedCloseError(err) {
				s.logger.Debug("client went away before the response", "error", err)
			} else {
				s.logger.Warn("writing response failed", "error", err)
			}
			return
		}
	}
}

// readFrames reads frames from conn and hands them to the dispatch loop
// one at a time, closing frames when the read side ends.
//
// A clean end of stream between frames is a half-close: the client
// still waits for answers to what it sent, so the connection stays up
// until the peer hangs up entirely. Any other read failure cancels the
// connection at once.
func (s *Server) readFrames(ctx context.Context, cancel context.CancelFunc, conn net.Conn, frames chan<- []byte) {
	err := s.readLoop(ctx, conn, frames)
	close(frames)
	if errors.Is(err, io.EOF) {
		netutil.WaitHangup(ctx, conn)
	}
	cancel()
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn, frames chan<- []byte) error {
	for {
		payload, err := sshwire.ReadFrame(conn, s.maxFrameLength)
		if err != nil {
			switch {
			case ctx.Err() != nil || netutil.IsExpectedCloseError(err):
			case errors.Is(err, sshwire.ErrFrameTooLarge):
				s.logger.Warn("closing connection: request too large", "error", err)
			default:
				s.logger.Debug("closing connection", "error", err)
			}
			return err
		}
		select {
		case frames <- payload:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// respond decodes and dispatches one request payload.
func (s *Server) respond(ctx context.Context, payload []byte) agentproto.Message {
	s.requests.Add(1)

	message, err := agentproto.Parse(payload)
	if err != nil {
		s.malformed.Add(1)
		s.failures.Add(1)
		s.logger.Debug("malformed request", "error", err)
		return agentproto.Failure{}
	}

	response := s.handler.Handle(ctx, message)
	if response == nil {
		response = agentproto.Failure{}
	}
	if _, failed := response.(agentproto.Failure); failed {
		s.failures.Add(1)
	}
	return response
}
