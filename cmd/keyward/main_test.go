// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/cmd/keyward/cli"
	"github.com/keyward-dev/keyward/lib/control"
	"github.com/keyward-dev/keyward/lib/keydir"
	"github.com/keyward-dev/keyward/lib/keystore/filestore"
	"github.com/keyward-dev/keyward/lib/keystore/memory"
	"github.com/keyward-dev/keyward/lib/pubkeyfile"
	"github.com/keyward-dev/keyward/lib/sealed"
	"github.com/keyward-dev/keyward/lib/sshagent"
	"github.com/keyward-dev/keyward/lib/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testApp captures command output. environment replaces the process
// environment for socket and config lookups.
type testApp struct {
	*app
	stdout      *bytes.Buffer
	stderr      *bytes.Buffer
	environment map[string]string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	environment := map[string]string{}
	return &testApp{
		app: &app{
			ctx:    t.Context(),
			stdout: stdout,
			stderr: stderr,
			getenv: func(key string) string { return environment[key] },
		},
		stdout:      stdout,
		stderr:      stderr,
		environment: environment,
	}
}

func (a *testApp) run(args ...string) error {
	return a.root().Execute(args)
}

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(private)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	return signer
}

// startAgent serves keys on an agent socket until the test ends.
func startAgent(t *testing.T, keys *memory.Store) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "agent.sock")
	server := sshagent.NewServer(sshagent.ServerConfig{
		SocketPath: socketPath,
		Handler:    sshagent.NewDispatcher(keydir.New(testLogger(), keys), testLogger()),
		Logger:     testLogger(),
	})
	serve(t, server.Serve, server.Ready())
	return socketPath
}

// startControl serves the registered actions until the test ends.
func startControl(t *testing.T, register func(*control.Server)) string {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := control.NewServer(socketPath, testLogger())
	register(server)
	serve(t, server.Serve, server.Ready())
	return socketPath
}

func serve(t *testing.T, run func(context.Context) error, ready <-chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server did not stop"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, ready, 5*time.Second, "server never became ready")
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != code {
		t.Fatalf("error = %v, want exit code %d", err, code)
	}
}

func TestListPrintsAuthorizedKeyLines(t *testing.T) {
	keys := memory.New("test")
	signer := newSigner(t)
	keys.Add(signer, "alice@laptop")
	socketPath := startAgent(t, keys)

	app := newTestApp(t)
	app.environment["SSH_AUTH_SOCK"] = socketPath
	if err := app.run("list"); err != nil {
		t.Fatalf("list: %v", err)
	}

	want := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))) + " alice@laptop\n"
	if app.stdout.String() != want {
		t.Errorf("list output = %q, want %q", app.stdout.String(), want)
	}
}

func TestListEmptyAgentExitsOne(t *testing.T) {
	socketPath := startAgent(t, memory.New("empty"))

	app := newTestApp(t)
	requireExitCode(t, app.run("list", "--socket", socketPath), 1)
	if !strings.Contains(app.stderr.String(), "no identities") {
		t.Errorf("stderr = %q", app.stderr.String())
	}
}

func TestListWithoutSocket(t *testing.T) {
	app := newTestApp(t)
	err := app.run("list")
	if err == nil || !strings.Contains(err.Error(), "SSH_AUTH_SOCK") {
		t.Errorf("error = %v, want a missing socket error", err)
	}
}

func TestExportWritesPublicKeyFiles(t *testing.T) {
	keys := memory.New("test")
	signer := newSigner(t)
	keys.Add(signer, "deploy")
	socketPath := startAgent(t, keys)

	directory := filepath.Join(t.TempDir(), "public-keys")
	stale := filepath.Join(directory, "stale"+pubkeyfile.Extension)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t)
	if err := app.run("export", "--socket", socketPath, "--directory", directory, "--clear"); err != nil {
		t.Fatalf("export: %v", err)
	}

	path := filepath.Join(directory, pubkeyfile.FileName(signer.PublicKey().Marshal()))
	if strings.TrimSpace(app.stdout.String()) != path {
		t.Errorf("export printed %q, want %q", app.stdout.String(), path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading exported key: %v", err)
	}
	publicKey, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil {
		t.Fatalf("ParseAuthorizedKey: %v", err)
	}
	if !bytes.Equal(publicKey.Marshal(), signer.PublicKey().Marshal()) || comment != "deploy" {
		t.Errorf("exported %s %q", ssh.FingerprintSHA256(publicKey), comment)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale file survived --clear: %v", err)
	}
}

func TestStatus(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {
		server.Handle(control.ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
			return control.StatusResult{
				Version:           "1.2.3",
				AgentSocket:       "/run/keyward/agent.sock",
				UptimeSeconds:     90,
				Stores:            2,
				ActiveConnections: 1,
				TotalConnections:  4,
				Requests:          10,
				Failures:          3,
				MalformedRequests: 1,
			}, nil
		})
	})

	app := newTestApp(t)
	if err := app.run("status", "--control-socket", socketPath); err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"1.2.3",
		"/run/keyward/agent.sock",
		"1m30s",
		"1 active, 4 total",
		"10 (3 failed, 1 malformed)",
	} {
		if !strings.Contains(app.stdout.String(), want) {
			t.Errorf("status output missing %q:\n%s", want, app.stdout.String())
		}
	}

	raw := newTestApp(t)
	if err := raw.run("status", "--control-socket", socketPath, "--raw"); err != nil {
		t.Fatalf("status --raw: %v", err)
	}
	if !strings.Contains(raw.stdout.String(), `"version": "1.2.3"`) {
		t.Errorf("raw output = %q", raw.stdout.String())
	}
}

func TestStatusFindsControlSocketFromConfig(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {
		server.Handle(control.ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
			return control.StatusResult{Version: "from-config"}, nil
		})
	})
	configPath := filepath.Join(t.TempDir(), "keyward.yaml")
	if err := os.WriteFile(configPath, []byte("control:\n  socket_path: "+socketPath+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t)
	app.environment["KEYWARD_CONFIG"] = configPath
	if err := app.run("status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(app.stdout.String(), "from-config") {
		t.Errorf("status output = %q", app.stdout.String())
	}
}

func TestIdentities(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {
		server.Handle(control.ActionIdentities, func(ctx context.Context, raw []byte) (any, error) {
			return control.IdentitiesResult{Identities: []control.IdentityInfo{{
				Comment:     "work",
				Fingerprint: "SHA256:abc",
				KeyType:     "ssh-ed25519",
				Backend:     "ssh",
				Source:      "/home/alice/.ssh",
				Approval:    true,
			}}}, nil
		})
	})

	app := newTestApp(t)
	if err := app.run("identities", "--control-socket", socketPath); err != nil {
		t.Fatalf("identities: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(app.stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("identities output = %q", app.stdout.String())
	}
	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "ssh ssh-ed25519 SHA256:abc required /home/alice/.ssh work" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestReloadReportsFailure(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {
		server.Handle(control.ActionReload, func(ctx context.Context, raw []byte) (any, error) {
			return control.ReloadResult{Stores: []control.StoreReload{
				{Store: "ssh", Report: filestore.Report{Loaded: 2, Skipped: []filestore.Skipped{{File: "id_old", Reason: "passphrase protected"}}}},
				{Store: "work", Error: "directory vanished"},
			}}, nil
		})
	})

	app := newTestApp(t)
	requireExitCode(t, app.run("reload", "--control-socket", socketPath), 1)
	for _, want := range []string{
		"ssh: 2 loaded, 1 skipped",
		"skipped id_old: passphrase protected",
		"work: failed: directory vanished",
	} {
		if !strings.Contains(app.stdout.String(), want) {
			t.Errorf("reload output missing %q:\n%s", want, app.stdout.String())
		}
	}
}

func TestReloadSuccess(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {
		server.Handle(control.ActionReload, func(ctx context.Context, raw []byte) (any, error) {
			return control.ReloadResult{
				Stores:         []control.StoreReload{{Store: "ssh", Report: filestore.Report{Loaded: 1}}},
				PublicKeyFiles: 1,
			}, nil
		})
	})

	app := newTestApp(t)
	if err := app.run("reload", "--control-socket", socketPath); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !strings.Contains(app.stdout.String(), "public keys: 1 written") {
		t.Errorf("reload output = %q", app.stdout.String())
	}
}

func TestControlErrorIsReported(t *testing.T) {
	socketPath := startControl(t, func(server *control.Server) {})

	app := newTestApp(t)
	err := app.run("reload", "--control-socket", socketPath)
	var actionErr *control.ActionError
	if !errors.As(err, &actionErr) {
		t.Errorf("error = %v, want an ActionError", err)
	}
}

func writePrivateKey(t *testing.T, path string) ssh.PublicKey {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(private, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	publicKey, err := ssh.NewPublicKey(private.Public())
	if err != nil {
		t.Fatal(err)
	}
	return publicKey
}

func TestSealRoundTrip(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	identities, err := sealed.ParseIdentities(keypair.PrivateKey.Bytes())
	if err != nil {
		t.Fatalf("ParseIdentities: %v", err)
	}

	directory := t.TempDir()
	keyPath := filepath.Join(directory, "id_ed25519")
	publicKey := writePrivateKey(t, keyPath)

	app := newTestApp(t)
	if err := app.run("seal", "--recipient", keypair.Recipient, keyPath); err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealedPath := keyPath + sealed.Extension
	if strings.TrimSpace(app.stdout.String()) != sealedPath {
		t.Errorf("seal printed %q", app.stdout.String())
	}

	info, err := os.Stat(sealedPath)
	if err != nil {
		t.Fatalf("stat sealed file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("sealed file mode = %v, want 0600", info.Mode().Perm())
	}

	file, err := os.Open(sealedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	plaintext, err := sealed.Open(file, identities...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer plaintext.Close()
	signer, err := ssh.ParsePrivateKey(plaintext.Bytes())
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if !bytes.Equal(signer.PublicKey().Marshal(), publicKey.Marshal()) {
		t.Error("sealed key does not match the original")
	}

	again := newTestApp(t)
	if err := again.run("seal", "--recipient", keypair.Recipient, keyPath); err == nil {
		t.Error("seal overwrote an existing file without --force")
	}
	forced := newTestApp(t)
	if err := forced.run("seal", "--recipient", keypair.Recipient, "--force", keyPath); err != nil {
		t.Errorf("seal --force: %v", err)
	}
}

func TestSealRejectsInvalidInput(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	directory := t.TempDir()
	notAKey := filepath.Join(directory, "notes.txt")
	if err := os.WriteFile(notAKey, []byte("hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(directory, "id_ed25519")
	writePrivateKey(t, keyPath)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no recipient", []string{"seal", keyPath}, "--recipient"},
		{"bad recipient", []string{"seal", "--recipient", "not-a-recipient", keyPath}, "parsing recipient"},
		{"no file", []string{"seal", "--recipient", keypair.Recipient}, "exactly one"},
		{"not a key", []string{"seal", "--recipient", keypair.Recipient, notAKey}, "not a private key"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			app := newTestApp(t)
			err := app.run(test.args...)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %v, want one mentioning %q", err, test.want)
			}
		})
	}
	if _, err := os.Stat(notAKey + sealed.Extension); !os.IsNotExist(err) {
		t.Errorf("output written for invalid input: %v", err)
	}
}

func TestVersion(t *testing.T) {
	app := newTestApp(t)
	if err := app.run("version"); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(app.stdout.String(), "keyward ") {
		t.Errorf("version output = %q", app.stdout.String())
	}
}
