// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sshagent

import (
	"context"
	"log/slog"

	"github.com/keyward-dev/keyward/lib/agentproto"
	"github.com/keyward-dev/keyward/lib/keydir"
)

// KeyDirectory is the view of the key backends the dispatcher needs.
// *keydir.Directory implements it.
type KeyDirectory interface {
	// List enumerates every identity currently available. It never
	// fails; unavailable backends contribute nothing.
	List(ctx context.Context) []keydir.Identity

	// Find returns the identity whose key blob matches exactly, from a
	// fresh enumeration, or keydir.ErrNotFound.
	Find(ctx context.Context, keyBlob []byte) (keydir.Identity, error)

	// Sign signs data with the identity's owning backend. It may block
	// pending approval and must honor ctx cancellation.
	Sign(ctx context.Context, identity keydir.Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error)
}

// Dispatcher maps requests to responses. It keeps no state between
// calls and is safe for concurrent use by many connections.
type Dispatcher struct {
	directory KeyDirectory
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over directory. A nil logger
// discards log output.
func NewDispatcher(directory KeyDirectory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{directory: directory, logger: logger}
}

// Handle answers one request. It always returns a message: every
// internal error becomes agentproto.Failure.
func (d *Dispatcher) Handle(ctx context.Context, message agentproto.Message) agentproto.Message {
	switch request := message.(type) {
	case agentproto.RequestIdentities:
		return d.listIdentities(ctx)
	case agentproto.SignRequest:
		return d.sign(ctx, request)
	default:
		d.logger.Debug("unhandled request", "opcode", message.Opcode())
		return agentproto.Failure{}
	}
}

func (d *Dispatcher) listIdentities(ctx context.Context) agentproto.Message {
	identities := d.directory.List(ctx)
	answer := agentproto.IdentitiesAnswer{Identities: make([]agentproto.Identity, 0, len(identities))}
	for _, identity := range identities {
		answer.Identities = append(answer.Identities, identity.Entry())
	}
	d.logger.Debug("listed identities", "count", len(answer.Identities))
	return answer
}

func (d *Dispatcher) sign(ctx context.Context, request agentproto.SignRequest) agentproto.Message {
	identity, err := d.directory.Find(ctx, request.KeyBlob)
	if err != nil {
		d.logger.Debug("sign request for unknown key",
			"fingerprint", keydir.Identity{KeyBlob: request.KeyBlob}.Fingerprint(),
		)
		return agentproto.Failure{}
	}

	signature, err := d.directory.Sign(ctx, identity, request.Data, request.Flags)
	if err != nil {
		if ctx.Err() != nil {
			d.logger.Debug("sign request abandoned",
				"fingerprint", identity.Fingerprint(),
				"error", err,
			)
		} else {
			d.logger.Warn("sign request failed",
				"fingerprint", identity.Fingerprint(),
				"backend", backendName(identity),
				"error", err,
			)
		}
		return agentproto.Failure{}
	}

	d.logger.Debug("signed",
		"fingerprint", identity.Fingerprint(),
		"backend", backendName(identity),
		"flags", uint32(request.Flags),
	)
	return agentproto.SignResponse{Signature: signature}
}

func backendName(identity keydir.Identity) string {
	if identity.Backend == nil {
		return ""
	}
	return identity.Backend.Name()
}
