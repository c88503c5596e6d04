// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package keydir aggregates key-holding backends behind one capability
// interface.
//
// A [Backend] enumerates the identities it owns and signs with them.
// Backends come in one variant per key technology (in-memory keys, key
// files on disk, keys behind an approval gate) and are collected in a
// [Directory] in a fixed order. The directory holds no identity state of
// its own: every [Directory.List] call asks each backend afresh, so
// keys that appear or disappear (hardware insertion, a reload of the
// key directory) are reflected on the next request.
//
// Signing failures are reported with the sentinel errors in this
// package so callers can distinguish a refused approval from a missing
// key or an unavailable device, even though the agent protocol
// collapses all of them into a single failure response.
package keydir
