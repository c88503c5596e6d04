// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package filestore is a keydir backend serving private key files from
// a directory.
//
// Every regular file in the directory is a candidate key: OpenSSH and
// PEM private keys are parsed directly, and files ending in .age are
// first decrypted with the store's age identities. Public key files
// (.pub), dotfiles and the usual non-key files of an ~/.ssh directory
// are ignored. A key's comment comes from its sibling .pub file when
// one exists and matches, and is the file name otherwise.
//
// The key set is loaded by [New] and replaced by [Store.Reload]. A
// reload builds the new set completely before swapping it in, so
// concurrent List and Sign calls see either the old set or the new one.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/agentproto"
	"github.com/keyward-dev/keyward/lib/keydir"
	"github.com/keyward-dev/keyward/lib/sealed"
	"github.com/keyward-dev/keyward/lib/secret"
)

// Config configures a Store.
type Config struct {
	// Name identifies the store in logs and control output. Defaults to
	// the directory's base name.
	Name string

	// Directory holds the key files. Required.
	Directory string

	// AgeIdentityFile decrypts .age key files. Without it, .age files
	// are skipped.
	AgeIdentityFile string

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Skipped describes a file Reload could not load.
type Skipped struct {
	File   string `cbor:"file"`
	Reason string `cbor:"reason"`
}

// Report summarizes one load of the directory.
type Report struct {
	Loaded  int       `cbor:"loaded"`
	Skipped []Skipped `cbor:"skipped,omitempty"`
}

type key struct {
	signer  ssh.Signer
	keyBlob []byte
	comment string
	file    string
}

// Store is a keydir.Backend over a key directory.
type Store struct {
	name            string
	directory       string
	ageIdentityFile string
	logger          *slog.Logger

	// reloadMu serializes reloads; mu guards keys.
	reloadMu sync.Mutex
	mu       sync.RWMutex
	keys     []key
}

// New creates a store and performs the initial load. A directory that
// cannot be read is an error; individual bad files are not.
func New(ctx context.Context, config Config) (*Store, Report, error) {
	if config.Directory == "" {
		return nil, Report{}, errors.New("filestore: directory is required")
	}
	if config.Name == "" {
		config.Name = filepath.Base(config.Directory)
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	store := &Store{
		name:            config.Name,
		directory:       config.Directory,
		ageIdentityFile: config.AgeIdentityFile,
		logger:          config.Logger.With("backend", config.Name),
	}
	report, err := store.Reload(ctx)
	if err != nil {
		return nil, report, err
	}
	return store, report, nil
}

// Name implements keydir.Backend.
func (s *Store) Name() string { return s.name }

// Directory returns the key directory.
func (s *Store) Directory() string { return s.directory }

// Reload rescans the directory and atomically replaces the key set. On
// error the previous set stays in place.
func (s *Store) Reload(ctx context.Context) (Report, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return Report{}, fmt.Errorf("reading key directory: %w", err)
	}

	var identities []age.Identity
	if s.ageIdentityFile != "" {
		identities, err = sealed.LoadIdentities(s.ageIdentityFile)
		if err != nil {
			return Report{}, fmt.Errorf("loading age identities: %w", err)
		}
	}

	var (
		report Report
		keys   []key
	)
	skip := func(file string, err error) {
		s.logger.Warn("skipping key file", "path", filepath.Join(s.directory, file), "error", err)
		report.Skipped = append(report.Skipped, Skipped{File: file, Reason: err.Error()})
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		file := entry.Name()
		if !entry.Type().IsRegular() || ignored(file) {
			continue
		}

		loaded, err := s.load(file, identities)
		if err != nil {
			skip(file, err)
			continue
		}
		if duplicate(keys, loaded.keyBlob) {
			skip(file, errors.New("duplicate of an earlier key"))
			continue
		}
		keys = append(keys, loaded)
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()

	report.Loaded = len(keys)
	s.logger.Info("key directory loaded", "path", s.directory, "loaded", report.Loaded, "skipped", len(report.Skipped))
	return report, nil
}

// load reads, decrypts if sealed, and parses one key file.
func (s *Store) load(file string, identities []age.Identity) (key, error) {
	path := filepath.Join(s.directory, file)
	baseName := file

	var (
		contents *secret.Buffer
		err      error
	)
	if strings.HasSuffix(file, sealed.Extension) {
		if len(identities) == 0 {
			return key{}, errors.New("sealed key but no age identity file configured")
		}
		baseName = strings.TrimSuffix(file, sealed.Extension)
		contents, err = openSealed(path, identities)
	} else {
		contents, err = secret.ReadFile(path)
	}
	if err != nil {
		return key{}, err
	}
	defer contents.Close()

	privateKey, err := ssh.ParseRawPrivateKey(contents.Bytes())
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return key{}, errors.New("key is passphrase-protected")
		}
		return key{}, fmt.Errorf("parsing private key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return key{}, fmt.Errorf("creating signer: %w", err)
	}

	keyBlob := signer.PublicKey().Marshal()
	return key{
		signer:  signer,
		keyBlob: keyBlob,
		comment: s.comment(baseName, keyBlob),
		file:    file,
	}, nil
}

func openSealed(path string, identities []age.Identity) (*secret.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return sealed.Open(file, identities...)
}

// comment returns the comment from baseName.pub when that file holds
// the same key, and baseName otherwise.
func (s *Store) comment(baseName string, keyBlob []byte) string {
	data, err := os.ReadFile(filepath.Join(s.directory, baseName+".pub"))
	if err != nil {
		return baseName
	}
	publicKey, comment, _, _, err := ssh.ParseAuthorizedKey(data)
	if err != nil || comment == "" || !bytes.Equal(publicKey.Marshal(), keyBlob) {
		return baseName
	}
	return comment
}

var ignoredFiles = map[string]bool{
	"authorized_keys":  true,
	"authorized_keys2": true,
	"config":           true,
	"known_hosts":      true,
	"known_hosts.old":  true,
	"environment":      true,
}

func ignored(file string) bool {
	return strings.HasPrefix(file, ".") ||
		strings.HasSuffix(file, ".pub") ||
		strings.HasSuffix(file, "-cert.pub") ||
		ignoredFiles[file]
}

func duplicate(keys []key, keyBlob []byte) bool {
	for _, existing := range keys {
		if bytes.Equal(existing.keyBlob, keyBlob) {
			return true
		}
	}
	return false
}

// List implements keydir.Backend.
func (s *Store) List(ctx context.Context) ([]keydir.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identities := make([]keydir.Identity, 0, len(s.keys))
	for _, key := range s.keys {
		identities = append(identities, keydir.Identity{
			KeyBlob: append([]byte(nil), key.keyBlob...),
			Comment: key.comment,
			Backend: s,
		})
	}
	return identities, nil
}

// Sign implements keydir.Backend. A key dropped by a reload between
// List and Sign returns keydir.ErrNotFound.
func (s *Store) Sign(ctx context.Context, identity keydir.Identity, data []byte, flags agentproto.SignatureFlags) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var signer ssh.Signer
	for _, key := range s.keys {
		if bytes.Equal(key.keyBlob, identity.KeyBlob) {
			signer = key.signer
			break
		}
	}
	s.mu.RUnlock()
	if signer == nil {
		return nil, keydir.ErrNotFound
	}
	return keydir.SignWith(signer, data, flags)
}

// Files returns the key file backing each loaded key, in load order.
func (s *Store) Files() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]string, len(s.keys))
	for index, key := range s.keys {
		files[index] = key.file
	}
	return files
}

// Each calls fn for every loaded key in load order. It is how a memory
// store takes a one-time copy of a directory.
func (s *Store) Each(fn func(signer ssh.Signer, comment string)) {
	s.mu.RLock()
	keys := s.keys
	s.mu.RUnlock()
	for _, key := range keys {
		fn(key.signer, key.comment)
	}
}
