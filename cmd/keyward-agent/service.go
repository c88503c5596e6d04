// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/keyward-dev/keyward/lib/approval"
	"github.com/keyward-dev/keyward/lib/clock"
	"github.com/keyward-dev/keyward/lib/config"
	"github.com/keyward-dev/keyward/lib/control"
	"github.com/keyward-dev/keyward/lib/keydir"
	"github.com/keyward-dev/keyward/lib/keystore/filestore"
	"github.com/keyward-dev/keyward/lib/keystore/memory"
	"github.com/keyward-dev/keyward/lib/pubkeyfile"
	"github.com/keyward-dev/keyward/lib/sshagent"
	"github.com/keyward-dev/keyward/lib/version"
)

// keyStore is one configured key store. files is set for stores that
// rescan their directory on reload.
type keyStore struct {
	name    string
	backend keydir.Backend
	files   *filestore.Store
}

// agentService owns the agent socket, the control socket and the
// stores behind them.
type agentService struct {
	config  *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	started time.Time

	stores     []keyStore
	directory  *keydir.Directory
	server     *sshagent.Server
	control    *control.Server
	publicKeys *pubkeyfile.Writer

	// reloadMu serializes reloads and public key exports.
	reloadMu sync.Mutex
}

func newAgentService(ctx context.Context, cfg *config.Config, logger *slog.Logger, clk clock.Clock) (*agentService, error) {
	approver, err := newApprover(cfg.Approval)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.ApprovalTimeout()
	if err != nil {
		return nil, err
	}

	service := &agentService{
		config:  cfg,
		logger:  logger,
		clock:   clk,
		started: clk.Now(),
	}

	backends := make([]keydir.Backend, 0, len(cfg.Stores))
	for _, storeConfig := range cfg.Stores {
		opened, err := openStore(ctx, storeConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("opening store %q: %w", storeConfig.Name, err)
		}
		if approver != nil {
			opened.backend = approval.NewGate(opened.backend, approval.GateConfig{
				Approver: approver,
				Timeout:  timeout,
				Clock:    clk,
				Logger:   logger,
			})
		}
		service.stores = append(service.stores, opened)
		backends = append(backends, opened.backend)
	}

	service.directory = keydir.New(logger, backends...)
	service.server = sshagent.NewServer(sshagent.ServerConfig{
		SocketPath:     cfg.Agent.SocketPath,
		Handler:        sshagent.NewDispatcher(service.directory, logger),
		MaxFrameLength: cfg.Agent.MaxFrameLength,
		Logger:         logger,
	})

	if cfg.Control.SocketPath != "" {
		service.control = control.NewServer(cfg.Control.SocketPath, logger)
		service.control.Handle(control.ActionStatus, service.handleStatus)
		service.control.Handle(control.ActionIdentities, service.handleIdentities)
		service.control.Handle(control.ActionReload, service.handleReload)
	}
	if cfg.PublicKeys.Enabled {
		service.publicKeys = &pubkeyfile.Writer{Directory: cfg.PublicKeys.Directory, Logger: logger}
	}
	return service, nil
}

// newApprover returns nil when signatures need no approval.
func newApprover(approvalConfig config.ApprovalConfig) (approval.Approver, error) {
	switch approvalConfig.Mode {
	case config.ApprovalNone, "":
		return nil, nil
	case config.ApprovalAlwaysDeny:
		return approval.Never(), nil
	case config.ApprovalCommand:
		if len(approvalConfig.Command) == 0 {
			return nil, errors.New("approval command is empty")
		}
		return approval.Command(approvalConfig.Command), nil
	default:
		return nil, fmt.Errorf("unknown approval mode %q", approvalConfig.Mode)
	}
}

func openStore(ctx context.Context, storeConfig config.StoreConfig, logger *slog.Logger) (keyStore, error) {
	files, report, err := filestore.New(ctx, filestore.Config{
		Name:            storeConfig.Name,
		Directory:       storeConfig.Directory,
		AgeIdentityFile: storeConfig.AgeIdentityFile,
		Logger:          logger,
	})
	if err != nil {
		return keyStore{}, err
	}

	switch storeConfig.Type {
	case config.StoreMemory:
		keys := memory.New(storeConfig.Name)
		files.Each(keys.Add)
		logger.Info("copied key directory into memory", "backend", storeConfig.Name, "keys", keys.Len())
		return keyStore{name: storeConfig.Name, backend: keys}, nil
	case config.StoreFile, "":
		logger.Info("serving key directory", "backend", storeConfig.Name, "keys", report.Loaded)
		return keyStore{name: storeConfig.Name, backend: files, files: files}, nil
	default:
		return keyStore{}, fmt.Errorf("unknown store type %q", storeConfig.Type)
	}
}

// Run serves both sockets until ctx is cancelled or one of them fails.
func (s *agentService) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan error, 2)
	running := 1
	go func() { results <- s.server.Serve(runCtx) }()
	if s.control != nil {
		running++
		go func() { results <- s.control.Serve(runCtx) }()
	}

	go func() {
		select {
		case <-s.server.Ready():
			s.logger.Info("agent ready", "SSH_AUTH_SOCK", s.config.Agent.SocketPath)
			if _, err := s.exportPublicKeys(runCtx); err != nil {
				s.logger.Warn("exporting public keys failed", "error", err)
			}
		case <-runCtx.Done():
		}
	}()

	var firstErr error
	for ; running > 0; running-- {
		if err := <-results; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	if firstErr == nil {
		s.logger.Info("keyward-agent stopped")
	}
	return firstErr
}

// exportPublicKeys writes the current key set to the public key
// directory, when enabled. It returns the number of files written.
func (s *agentService) exportPublicKeys(ctx context.Context) (int, error) {
	if s.publicKeys == nil {
		return 0, nil
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	written, err := s.publicKeys.Write(ctx, s.directory.List(ctx), s.config.PublicKeys.Clear)
	return len(written), err
}

func (s *agentService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	stats := s.server.Stats()
	return control.StatusResult{
		Version:           version.Info(),
		AgentSocket:       s.config.Agent.SocketPath,
		UptimeSeconds:     int64(s.clock.Now().Sub(s.started) / time.Second),
		Stores:            len(s.stores),
		ActiveConnections: stats.ActiveConnections,
		TotalConnections:  stats.TotalConnections,
		Requests:          stats.Requests,
		Failures:          stats.Failures,
		MalformedRequests: stats.MalformedRequests,
	}, nil
}

func (s *agentService) handleIdentities(ctx context.Context, raw []byte) (any, error) {
	identities := s.directory.List(ctx)
	result := control.IdentitiesResult{Identities: make([]control.IdentityInfo, 0, len(identities))}
	for _, identity := range identities {
		keyType := "unknown"
		if publicKey, err := identity.PublicKey(); err == nil {
			keyType = publicKey.Type()
		}
		info := control.IdentityInfo{
			Comment:     identity.Comment,
			Fingerprint: identity.Fingerprint(),
			KeyType:     keyType,
		}
		if backend := identity.Backend; backend != nil {
			info.Backend = backend.Name()
			if gate, gated := backend.(*approval.Gate); gated {
				info.Approval = true
				backend = gate.Unwrap()
			}
			if files, ok := backend.(*filestore.Store); ok {
				info.Source = files.Directory()
			}
		}
		result.Identities = append(result.Identities, info)
	}
	return result, nil
}

func (s *agentService) handleReload(ctx context.Context, raw []byte) (any, error) {
	var result control.ReloadResult
	for _, store := range s.stores {
		if store.files == nil {
			continue
		}
		report, err := store.files.Reload(ctx)
		entry := control.StoreReload{Store: store.name, Report: report}
		if err != nil {
			s.logger.Warn("reloading store failed", "backend", store.name, "error", err)
			entry.Error = err.Error()
		}
		result.Stores = append(result.Stores, entry)
	}

	written, err := s.exportPublicKeys(ctx)
	result.PublicKeyFiles = written
	if err != nil {
		result.PublicKeysError = err.Error()
	}
	return result, nil
}
