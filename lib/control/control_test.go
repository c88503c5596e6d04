// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keyward-dev/keyward/lib/codec"
	"github.com/keyward-dev/keyward/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// startServer serves the registered actions until the test ends.
func startServer(t *testing.T, register func(*Server)) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewServer(socketPath, testLogger())
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "control server did not stop"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "control server never became ready")
	return socketPath
}

func TestCallDecodesResult(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {
		server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
			return StatusResult{Version: "1.0.0", Requests: 7}, nil
		})
	})

	var status StatusResult
	if err := Call(context.Background(), socketPath, ActionStatus, nil, &status); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if status.Version != "1.0.0" || status.Requests != 7 {
		t.Errorf("status = %+v", status)
	}
}

func TestCallPassesFields(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {
		server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
			var request struct {
				Action string `cbor:"action"`
				Word   string `cbor:"word"`
			}
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, err
			}
			return map[string]string{"action": request.Action, "word": request.Word}, nil
		})
	})

	var echoed map[string]string
	if err := Call(context.Background(), socketPath, "echo", map[string]any{"word": "hello"}, &echoed); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if echoed["word"] != "hello" || echoed["action"] != "echo" {
		t.Errorf("echoed = %v", echoed)
	}
}

func TestCallNilResult(t *testing.T) {
	called := make(chan struct{}, 1)
	socketPath := startServer(t, func(server *Server) {
		server.Handle(ActionReload, func(ctx context.Context, raw []byte) (any, error) {
			called <- struct{}{}
			return nil, nil
		})
	})
	if err := Call(context.Background(), socketPath, ActionReload, nil, nil); err != nil {
		t.Fatalf("Call: %v", err)
	}
	testutil.RequireReceive(t, called, time.Second, "handler not called")
}

func TestCallErrors(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {
		server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
			return nil, errors.New("store exploded")
		})
	})

	err := Call(context.Background(), socketPath, "fail", nil, nil)
	var actionError *ActionError
	if !errors.As(err, &actionError) {
		t.Fatalf("Call error = %v, want *ActionError", err)
	}
	if actionError.Message != "store exploded" || actionError.Action != "fail" {
		t.Errorf("ActionError = %+v", actionError)
	}

	err = Call(context.Background(), socketPath, "missing", nil, nil)
	if !errors.As(err, &actionError) || !strings.Contains(actionError.Message, `unknown action "missing"`) {
		t.Errorf("Call(missing) error = %v, want unknown action", err)
	}

	err = Call(context.Background(), filepath.Join(t.TempDir(), "absent.sock"), ActionStatus, nil, nil)
	if err == nil || errors.As(err, &actionError) {
		t.Errorf("Call to absent socket error = %v, want a connection error", err)
	}
}

func TestMissingActionField(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {})

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := codec.NewEncoder(conn).Encode(map[string]any{"word": "x"}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if response.OK || response.Error != "missing required field: action" {
		t.Errorf("response = %+v", response)
	}
}

func TestCallRaw(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {
		server.Handle(ActionIdentities, func(ctx context.Context, raw []byte) (any, error) {
			return IdentitiesResult{Identities: []IdentityInfo{{Comment: "laptop", KeyType: "ssh-ed25519"}}}, nil
		})
	})

	data, err := CallRaw(context.Background(), socketPath, ActionIdentities, nil)
	if err != nil {
		t.Fatalf("CallRaw: %v", err)
	}
	diagnostic, err := codec.Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"laptop"`) {
		t.Errorf("diagnostic = %s, want the comment", diagnostic)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewServer("/unused", nil)
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Error("second Handle did not panic")
		}
	}()
	server.Handle(ActionStatus, func(context.Context, []byte) (any, error) { return nil, nil })
}

func TestPanickingActionReturnsError(t *testing.T) {
	socketPath := startServer(t, func(server *Server) {
		server.Handle("broken", func(ctx context.Context, raw []byte) (any, error) {
			panic("nil map write")
		})
		server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
			return StatusResult{Version: "still-up"}, nil
		})
	})

	err := Call(context.Background(), socketPath, "broken", nil, nil)
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || !strings.Contains(actionErr.Message, "internal error") {
		t.Fatalf("Call(broken) error = %v, want an internal error response", err)
	}

	var status StatusResult
	if err := Call(context.Background(), socketPath, ActionStatus, nil, &status); err != nil {
		t.Fatalf("status after a panic: %v", err)
	}
	if status.Version != "still-up" {
		t.Errorf("status = %+v", status)
	}
}
