// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentproto is the typed message model of the OpenSSH agent
// protocol.
//
// A message payload is one opcode byte followed by fields encoded with
// [sshwire]: variable-length fields are length-prefixed, counts and
// flags are fixed 4-byte integers. [Parse] decodes a payload strictly
// (unknown opcodes and trailing bytes are errors) and [Marshal] is its
// total inverse: Parse(Marshal(m)) equals m for every message value.
//
// Opcodes that the protocol defines but this agent does not implement
// (adding keys, locking, extensions, the legacy v1 requests) decode to
// [Unsupported], which keeps the body verbatim. The dispatcher answers
// them with [Failure].
package agentproto
