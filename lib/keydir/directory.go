// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package keydir

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// Directory is an ordered collection of backends. It is safe for
// concurrent use; backends may be added while requests are in flight.
type Directory struct {
	mu       sync.RWMutex
	backends []Backend
	logger   *slog.Logger
}

// New creates a directory over backends, consulted in the given order.
// A nil logger discards log output.
func New(logger *slog.Logger, backends ...Backend) *Directory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{
		backends: append([]Backend(nil), backends...),
		logger:   logger,
	}
}

// Add appends a backend after the existing ones.
func (d *Directory) Add(backend Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends = append(d.backends, backend)
}

// Backends returns the backends in iteration order.
func (d *Directory) Backends() []Backend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Backend(nil), d.backends...)
}

// List enumerates every identity of every backend, backends in order
// and each backend's identities in the order it reports them. A backend
// whose List fails contributes nothing; the failure is logged and the
// rest of the directory is still listed. Each returned identity's
// Backend field names the directory-level backend that listed it.
//
// If ctx is cancelled part way, the identities collected so far are
// returned.
func (d *Directory) List(ctx context.Context) []Identity {
	var identities []Identity
	for _, backend := range d.Backends() {
		if ctx.Err() != nil {
			break
		}
		listed, err := backend.List(ctx)
		if err != nil {
			d.logger.Warn("listing backend failed",
				"backend", backend.Name(),
				"error", err,
			)
			continue
		}
		for _, identity := range listed {
			identity.Backend = backend
			identities = append(identities, identity)
		}
	}
	return identities
}

// Find returns the first identity whose key blob equals keyBlob byte
// for byte, from a fresh enumeration. Returns ErrNotFound when no
// backend holds the key.
func (d *Directory) Find(ctx context.Context, keyBlob []byte) (Identity, error) {
	for _, identity := range d.List(ctx) {
		if bytes.Equal(identity.KeyBlob, keyBlob) {
			return identity, nil
		}
	}
	return Identity{}, ErrNotFound
}
