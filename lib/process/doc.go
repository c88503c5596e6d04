// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the keyward binaries:
// reporting the error that ends main before or without a logger, and
// mapping it to an exit status.
package process
