// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/keyward-dev/keyward/lib/clock"
	"github.com/keyward-dev/keyward/lib/config"
	"github.com/keyward-dev/keyward/lib/process"
	"github.com/keyward-dev/keyward/lib/version"
)

func main() {
	process.Exit(run())
}

func run() error {
	var (
		configPath    string
		socketPath    string
		controlSocket string
		logLevel      string
		logFormat     string
		showVersion   bool
	)

	flagSet := pflag.NewFlagSet("keyward-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&socketPath, "socket", "", "agent socket path (overrides agent.socket_path)")
	flagSet.StringVar(&controlSocket, "control-socket", "", "control socket path (overrides control.socket_path)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	flagSet.StringVar(&logFormat, "log-format", "", "json or text (overrides log.format)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("keyward-agent")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("socket") {
		cfg.Agent.SocketPath = socketPath
	}
	if flagSet.Changed("control-socket") {
		cfg.Control.SocketPath = controlSocket
	}
	if flagSet.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting keyward-agent", "version", version.Info())

	service, err := newAgentService(ctx, cfg, logger, clock.Real())
	if err != nil {
		return err
	}
	return service.Run(ctx)
}

// loadConfig resolves the config file: the --config flag, then
// KEYWARD_CONFIG, then the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	default:
		return config.Default(), nil
	}
}

func newLogger(w io.Writer, logConfig config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logConfig.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}
	switch logConfig.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", logConfig.Format)
	}
}
