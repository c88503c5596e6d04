// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is a keydir backend holding software signers in
// process memory. Keys can be added and removed at any time, including
// while sign requests are in flight, which makes it the stand-in for
// removable hardware in tests and the home for keys loaded at runtime.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/agentproto"
	"github.com/keyward-dev/keyward/lib/keydir"
)

type entry struct {
	signer  ssh.Signer
	keyBlob []byte
	comment string
}

// Store is an in-memory keydir.Backend. The zero value is not usable;
// call New.
type Store struct {
	name string

	mu          sync.RWMutex
	entries     []entry
	unavailable bool
}

// New creates an empty store.
func New(name string) *Store {
	return &Store{name: name}
}

// Name implements keydir.Backend.
func (s *Store) Name() string { return s.name }

// Add inserts a signer. Adding a key that is already present replaces
// its comment and keeps its position.
func (s *Store) Add(signer ssh.Signer, comment string) {
	keyBlob := signer.PublicKey().Marshal()

	s.mu.Lock()
	defer s.mu.Unlock()
	for index := range s.entries {
		if bytes.Equal(s.entries[index].keyBlob, keyBlob) {
			s.entries[index].comment = comment
			s.entries[index].signer = signer
			return
		}
	}
	s.entries = append(s.entries, entry{signer: signer, keyBlob: keyBlob, comment: comment})
}

// Remove deletes the key with the given public blob. Reports whether a
// key was removed.
func (s *Store) Remove(keyBlob []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index := range s.entries {
		if bytes.Equal(s.entries[index].keyBlob, keyBlob) {
			s.entries = append(s.entries[:index], s.entries[index+1:]...)
			return true
		}
	}
	return false
}

// RemoveAll deletes every key.
func (s *Store) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SetUnavailable makes List and Sign fail with keydir.ErrUnavailable
// until cleared, as a detached device would.
func (s *Store) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

// List implements keydir.Backend. Every identity is copied whole under
// the lock.
func (s *Store) List(ctx context.Context) ([]keydir.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, fmt.Errorf("store %s: %w", s.name, keydir.ErrUnavailable)
	}
	identities := make([]keydir.Identity, 0, len(s.entries))
	for _, entry := range s.entries {
		identities = append(identities, keydir.Identity{
			KeyBlob: append([]byte(nil), entry.keyBlob...),
			Comment: entry.comment,
			Backend: s,
		})
	}
	return identities, nil
}

// Sign implements keydir.Backend. A key removed between List and Sign
// returns keydir.ErrNotFound.
func (s *Store) Sign(ctx context.Context, identity keydir.Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signer, err := s.lookup(identity.KeyBlob)
	if err != nil {
		return nil, err
	}
	return keydir.SignWith(signer, data, flags)
}

func (s *Store) lookup(keyBlob []byte) (ssh.Signer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.unavailable {
		return nil, fmt.Errorf("store %s: %w", s.name, keydir.ErrUnavailable)
	}
	for _, entry := range s.entries {
		if bytes.Equal(entry.keyBlob, keyBlob) {
			return entry.signer, nil
		}
	}
	return nil, keydir.ErrNotFound
}
