// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package keydir

import (
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/agentproto"
)

// Backend is one source of signing keys.
//
// List returns the identities the backend holds right now. Each
// returned Identity must be a complete value owned by the caller:
// backends copy key blobs rather than handing out shared slices.
//
// Sign produces an SSH-encoded signature blob over data with the key
// behind identity. It may block for an arbitrary time (user approval,
// hardware touch) and must return promptly with ctx.Err() once ctx is
// cancelled.
type Backend interface {
	Name() string
	List(ctx context.Context) ([]Identity, error)
	Sign(ctx context.Context, identity Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error)
}

// Identity is a public key advertised by a backend.
type Identity struct {
	// KeyBlob is the SSH wire encoding of the public key.
	KeyBlob []byte

	// Comment is the human-readable label shown by ssh-add -l.
	Comment string

	// Backend owns the private half of the key.
	Backend Backend
}

// PublicKey parses the identity's key blob.
func (i Identity) PublicKey() (ssh.PublicKey, error) {
	key, err := ssh.ParsePublicKey(i.KeyBlob)
	if err != nil {
		return nil, fmt.Errorf("parsing key blob: %w", err)
	}
	return key, nil
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of the key, or
// "unparseable" when the blob is not a valid public key.
func (i Identity) Fingerprint() string {
	key, err := i.PublicKey()
	if err != nil {
		return "unparseable"
	}
	return ssh.FingerprintSHA256(key)
}

// Entry converts the identity to its wire form.
func (i Identity) Entry() agentproto.Identity {
	return agentproto.Identity{KeyBlob: i.KeyBlob, Comment: i.Comment}
}
