// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package keydir

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/agentproto"
)

// Sign asks the identity's owning backend for a signature. Identities
// that did not come from a List call (no Backend) return ErrNotFound.
func (d *Directory) Sign(ctx context.Context, identity Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	if identity.Backend == nil {
		return nil, ErrNotFound
	}
	return identity.Backend.Sign(ctx, identity, data, flags)
}

// SignWith signs data with a software signer and returns the SSH wire
// encoding of the signature. For RSA keys the flags select rsa-sha2-256
// or rsa-sha2-512 (256 wins when both are set, as in OpenSSH); other
// key types and unknown flag bits ignore the flags.
func SignWith(signer ssh.Signer, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	var (
		signature *ssh.Signature
		err       error
	)
	algorithm := rsaAlgorithm(flags)
	algorithmSigner, ok := signer.(ssh.AlgorithmSigner)
	if algorithm != "" && ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		signature, err = algorithmSigner.SignWithAlgorithm(rand.Reader, data, algorithm)
	} else {
		signature, err = signer.Sign(rand.Reader, data)
	}
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return ssh.Marshal(signature), nil
}

func rsaAlgorithm(flags agentproto.SignatureFlags) string {
	switch {
	case flags&agentproto.FlagRSASHA256 != 0:
		return ssh.KeyAlgoRSASHA256
	case flags&agentproto.FlagRSASHA512 != 0:
		return ssh.KeyAlgoRSASHA512
	}
	return ""
}
