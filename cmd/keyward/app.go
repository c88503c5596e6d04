// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/keyward-dev/keyward/cmd/keyward/cli"
	"github.com/keyward-dev/keyward/lib/config"
	"github.com/keyward-dev/keyward/lib/version"
)

const agentDialTimeout = 5 * time.Second

// app carries the process state commands write to. Tests substitute
// buffers and an environment map.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

func newApp(ctx context.Context) *app {
	return &app{ctx: ctx, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "keyward",
		Description: `Manage a running keyward-agent.

list and export speak the SSH agent protocol on $SSH_AUTH_SOCK (or
--socket). status, identities and reload use the agent's control
socket, taken from --control-socket or the agent configuration.`,
		Subcommands: []*cli.Command{
			a.listCommand(),
			a.exportCommand(),
			a.statusCommand(),
			a.identitiesCommand(),
			a.reloadCommand(),
			a.sealCommand(),
			a.versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "List the keys the agent offers", Command: "keyward list"},
			{Description: "Pick up new key files", Command: "keyward reload"},
			{Description: "Encrypt a key for the file store", Command: "keyward seal --recipient age1... ~/.ssh/id_ed25519"},
		},
	}
}

func (a *app) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			version.Fprint(a.stdout, "keyward")
			return nil
		},
	}
}

// controlFlags are shared by the commands that use the control socket.
type controlFlags struct {
	configPath    string
	controlSocket string
}

func (f *controlFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "agent config file used to find the control socket (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&f.controlSocket, "control-socket", "", "control socket path (overrides the config)")
}

// socketPath resolves the control socket: the flag, else the socket
// named by the agent configuration.
func (f *controlFlags) socketPath(a *app) (string, error) {
	if f.controlSocket != "" {
		return f.controlSocket, nil
	}
	cfg, err := a.loadConfig(f.configPath)
	if err != nil {
		return "", err
	}
	return cfg.Control.SocketPath, nil
}

func (a *app) loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = a.getenv(config.EnvironmentVariable)
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// agentSocketPath resolves the agent socket: the flag, else
// $SSH_AUTH_SOCK.
func (a *app) agentSocketPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if path := a.getenv("SSH_AUTH_SOCK"); path != "" {
		return path, nil
	}
	return "", errors.New("no agent socket: pass --socket or set SSH_AUTH_SOCK")
}

func (a *app) dialAgent(socketPath string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: agentDialTimeout}
	conn, err := dialer.DialContext(a.ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", socketPath, err)
	}
	return conn, nil
}

// isTerminal reports whether w is a terminal, which selects table
// output over machine-readable lines.
func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
