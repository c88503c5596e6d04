// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package keydir

import "errors"

var (
	// ErrNotFound means no backend currently holds the requested key.
	ErrNotFound = errors.New("keydir: identity not found")

	// ErrApprovalDenied means the approval step refused the signature.
	ErrApprovalDenied = errors.New("keydir: signing approval denied")

	// ErrApprovalTimeout means the approval step did not answer in time.
	ErrApprovalTimeout = errors.New("keydir: signing approval timed out")

	// ErrUnavailable means the backend cannot reach its key material
	// (device removed, store locked, I/O failure).
	ErrUnavailable = errors.New("keydir: backend unavailable")
)
