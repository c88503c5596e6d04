// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package pubkeyfile exports the agent's public keys as files, one
// authorized_keys line per file, so ssh_config IdentityFile entries
// can pin a specific key held by the agent.
//
// Files are named by the hex SHA-256 of the key blob, which is stable
// across restarts and safe in any file system.
package pubkeyfile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/keyward-dev/keyward/lib/keydir"
)

// Extension is the suffix of every exported file.
const Extension = ".pub"

// Writer writes public key files into Directory.
type Writer struct {
	Directory string
	Logger    *slog.Logger
}

// FileName returns the export file name for a key blob.
func FileName(keyBlob []byte) string {
	sum := sha256.Sum256(keyBlob)
	return hex.EncodeToString(sum[:]) + Extension
}

// Line renders an identity as an authorized_keys line.
func Line(identity keydir.Identity) ([]byte, error) {
	publicKey, err := identity.PublicKey()
	if err != nil {
		return nil, err
	}
	line := ssh.MarshalAuthorizedKey(publicKey)
	if comment := strings.TrimSpace(identity.Comment); comment != "" {
		line = append(line[:len(line)-1], ' ')
		line = append(line, comment...)
		line = append(line, '\n')
	}
	return line, nil
}

// Write exports identities and returns the paths written. With clear
// set, .pub files in the directory that do not belong to one of
// identities are removed. Identities whose blob does not parse are
// logged and skipped.
func (w Writer) Write(ctx context.Context, identities []keydir.Identity, clear bool) ([]string, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if w.Directory == "" {
		return nil, errors.New("pubkeyfile: directory is required")
	}
	if err := os.MkdirAll(w.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("creating public key directory: %w", err)
	}

	keep := make(map[string]bool, len(identities))
	var written []string
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		line, err := Line(identity)
		if err != nil {
			logger.Warn("not exporting unparseable key", "backend", backendName(identity), "error", err)
			continue
		}
		name := FileName(identity.KeyBlob)
		keep[name] = true
		path := filepath.Join(w.Directory, name)
		if err := writeFile(path, line); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if clear {
		if err := w.removeStale(keep, logger); err != nil {
			return written, err
		}
	}
	logger.Debug("public keys exported", "path", w.Directory, "count", len(written))
	return written, nil
}

func (w Writer) removeStale(keep map[string]bool, logger *slog.Logger) error {
	entries, err := os.ReadDir(w.Directory)
	if err != nil {
		return fmt.Errorf("listing public key directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, Extension) || keep[name] {
			continue
		}
		if err := os.Remove(filepath.Join(w.Directory, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale public key file: %w", err)
		}
		logger.Debug("removed stale public key file", "path", filepath.Join(w.Directory, name))
	}
	return nil
}

// writeFile replaces path atomically with a 0644 file.
func writeFile(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), ".keyward-pub-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := temporary.Chmod(0o644); err != nil {
		temporary.Close()
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

func backendName(identity keydir.Identity) string {
	if identity.Backend == nil {
		return ""
	}
	return identity.Backend.Name()
}
