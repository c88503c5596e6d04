// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR encoding used on the control socket.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 section 4.2) so
// equal values always produce equal bytes. Decoding ignores unknown
// fields and decodes untyped maps as map[string]any. Consumers import
// this package rather than fxamacker/cbor directly.
package codec
