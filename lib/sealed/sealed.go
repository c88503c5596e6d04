// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/keyward-dev/keyward/lib/secret"
)

// Extension marks sealed key files in a key directory.
const Extension = ".age"

// MaxSealedSize bounds the plaintext Open will accept.
const MaxSealedSize = secret.MaxFileSize

// ErrNoIdentity is returned by LoadIdentities for a file with no keys.
var ErrNoIdentity = errors.New("sealed: no age identities found")

// Keypair is a fresh age x25519 identity. The private half lives in a
// secret.Buffer; Recipient is safe to publish.
type Keypair struct {
	PrivateKey *secret.Buffer
	Recipient  string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey == nil {
		return nil
	}
	return k.PrivateKey.Close()
}

// GenerateKeypair creates a new x25519 identity.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting age identity: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		Recipient:  identity.Recipient().String(),
	}, nil
}

// LoadIdentities reads an age identity file. The file contents are held
// in a secret.Buffer while parsing.
func LoadIdentities(path string) ([]age.Identity, error) {
	buffer, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading age identity file: %w", err)
	}
	defer buffer.Close()
	return ParseIdentities(buffer.Bytes())
}

// ParseIdentities parses identity file contents.
func ParseIdentities(data []byte) ([]age.Identity, error) {
	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing age identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, ErrNoIdentity
	}
	return identities, nil
}

// ParseRecipients parses age1... recipient strings.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, errors.New("sealed: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// Seal encrypts plaintext to recipients and writes armored age output
// to w.
func Seal(w io.Writer, plaintext []byte, recipients ...age.Recipient) error {
	armored := armor.NewWriter(w)
	encrypted, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := encrypted.Write(plaintext); err != nil {
		return fmt.Errorf("encrypting: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return fmt.Errorf("finalizing armor: %w", err)
	}
	return nil
}

// Open decrypts an age file, armored or binary, and returns the
// plaintext in a secret.Buffer the caller must Close.
func Open(r io.Reader, identities ...age.Identity) (*secret.Buffer, error) {
	buffered := bufio.NewReader(r)
	var source io.Reader = buffered
	if start, _ := buffered.Peek(len(armor.Header)); string(start) == armor.Header {
		source = armor.NewReader(buffered)
	}

	decrypted, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	buffer, err := secret.ReadAll(decrypted, MaxSealedSize)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	return buffer, nil
}
