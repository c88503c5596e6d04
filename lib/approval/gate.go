// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyward-dev/keyward/lib/agentproto"
	"github.com/keyward-dev/keyward/lib/clock"
	"github.com/keyward-dev/keyward/lib/keydir"
)

// GateConfig configures a Gate.
type GateConfig struct {
	// Approver is consulted before every signature. Required.
	Approver Approver

	// Timeout bounds how long an approval may take. Zero waits until
	// the request's context is cancelled.
	Timeout time.Duration

	// Clock measures the timeout. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives approval outcomes. Defaults to discarding.
	Logger *slog.Logger
}

// Gate is a keydir.Backend that asks an Approver before delegating
// Sign to the wrapped backend. List passes through unchanged.
type Gate struct {
	backend  keydir.Backend
	approver Approver
	timeout  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewGate wraps backend.
func NewGate(backend keydir.Backend, config GateConfig) *Gate {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		backend:  backend,
		approver: config.Approver,
		timeout:  config.Timeout,
		clock:    config.Clock,
		logger:   config.Logger,
	}
}

// Name implements keydir.Backend.
func (g *Gate) Name() string { return g.backend.Name() }

// Unwrap returns the gated backend.
func (g *Gate) Unwrap() keydir.Backend { return g.backend }

// List implements keydir.Backend.
func (g *Gate) List(ctx context.Context) ([]keydir.Identity, error) {
	return g.backend.List(ctx)
}

// Sign implements keydir.Backend. It returns keydir.ErrApprovalTimeout
// when the approver does not answer within the timeout, an error
// wrapping keydir.ErrApprovalDenied when it refuses, and ctx.Err() when
// the caller goes away first. The approver's context is cancelled in
// every case where its answer is no longer wanted.
func (g *Gate) Sign(ctx context.Context, identity keydir.Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	request := NewRequest(identity, g.backend.Name(), data)

	approveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	answer := make(chan error, 1)
	go func() {
		answer <- g.approver.Approve(approveCtx, request)
	}()

	var expired <-chan time.Time
	if g.timeout > 0 {
		expired = g.clock.After(g.timeout)
	}

	select {
	case err := <-answer:
		if err != nil {
			g.logger.Info("signature refused",
				"backend", request.Backend,
				"fingerprint", request.Fingerprint,
				"error", err,
			)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if errors.Is(err, keydir.ErrApprovalDenied) || errors.Is(err, keydir.ErrUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("approval: %v: %w", err, keydir.ErrApprovalDenied)
		}
	case <-expired:
		g.logger.Info("signature approval timed out",
			"backend", request.Backend,
			"fingerprint", request.Fingerprint,
			"timeout", g.timeout,
		)
		return nil, keydir.ErrApprovalTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.logger.Debug("signature approved",
		"backend", request.Backend,
		"fingerprint", request.Fingerprint,
	)
	return g.backend.Sign(ctx, identity, data, flags)
}
