// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds private key material outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks and
// unmaps it. The garbage collector never sees the region, so it cannot
// leave stray copies of a key behind.
//
// [ReadFile] loads a key file straight into a Buffer, zeroing the
// transient heap copy. [Zero] wipes heap slices that held secrets
// briefly, such as decrypted age output.
package secret
