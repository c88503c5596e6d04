// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/keyward-dev/keyward/lib/testutil"
)

// connectedPair returns the server and client ends of a Unix socket
// connection.
func connectedPair(t *testing.T) (server, client *net.UnixConn) {
	t.Helper()
	path := filepath.Join(testutil.SocketDir(t), "pair.sock")
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	client, err = net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, err = listener.AcceptUnix()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestWaitHangupIgnoresHalfClose(t *testing.T) {
	server, client := connectedPair(t)
	if err := client.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := WaitHangup(ctx, server); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitHangup after half-close = %v, want the context deadline", err)
	}

	// The half-closed peer can still read what the server writes.
	if _, err := server.Write([]byte("x")); err != nil {
		t.Errorf("write to half-closed peer: %v", err)
	}
}

func TestWaitHangupReturnsOnClose(t *testing.T) {
	server, client := connectedPair(t)

	result := make(chan error, 1)
	go func() { result <- WaitHangup(context.Background(), server) }()
	time.Sleep(50 * time.Millisecond)
	client.Close()

	if err := testutil.RequireReceive(t, result, 5*time.Second, "WaitHangup did not notice the hangup"); err != nil {
		t.Errorf("WaitHangup = %v, want nil", err)
	}
}

func TestWaitHangupNeedsFileDescriptor(t *testing.T) {
	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()
	if err := WaitHangup(context.Background(), left); !errors.Is(err, ErrNotPollable) {
		t.Errorf("WaitHangup on a pipe = %v, want ErrNotPollable", err)
	}
}
