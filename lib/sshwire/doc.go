// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sshwire implements the length-prefixed binary framing used by
// the OpenSSH agent protocol.
//
// Everything on the wire is built from two primitives:
//
//   - A frame: a 4-byte big-endian length followed by exactly that many
//     bytes. The outer request/response unit is a frame, and every
//     variable-length field inside a payload (key blobs, comments, data
//     to sign, signatures) uses the same encoding.
//   - A fixed integer: 4 bytes, big-endian, with no body. Used for
//     counts and bit-flag fields.
//
// [DecodeFrame] and [DecodeFixedUint32] are kept separate on purpose.
// A string field and an integer field share the 4-byte big-endian
// leading width, but only the string field carries a body, and reading
// one as the other shifts every later field.
//
// The buffer functions are pure: they never mutate their input and
// report how many bytes the caller must drop before decoding the next
// item. [Reader] and [Builder] are thin cursors over those functions
// for decoding and encoding message payloads. [ReadFrame] and
// [WriteFrame] move whole frames over a byte stream.
//
// This package has no knowledge of message semantics.
package sshwire
