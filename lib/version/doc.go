// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for the keyward
// binaries and the control socket's status action.
//
// Values are injected at build time:
//
//	go build -ldflags "-X github.com/keyward-dev/keyward/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
