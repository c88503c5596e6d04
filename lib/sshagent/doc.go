// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sshagent answers OpenSSH agent requests.
//
// [Dispatcher] turns one decoded request into one response by consulting
// a key directory. It never fails at the protocol level: a missing key,
// a refused approval, an unavailable device, or an opcode the agent
// does not implement all become the protocol's failure response.
//
// [Server] is the connection loop. It listens on a Unix socket, serves
// each connection on its own goroutines, and on each connection reads
// one frame, dispatches it, and writes one frame back, strictly in
// order:
//
//	socket → sshwire.ReadFrame → agentproto.Parse → Dispatcher.Handle → agentproto.Marshal → sshwire.WriteFrame → socket
//
// A request that is framed correctly but does not decode (unknown
// opcode, trailing bytes, truncated fields) is answered with failure
// and the connection continues. A stream that breaks mid-frame, or
// declares a frame larger than the configured limit, closes only that
// connection.
//
// Each connection has its own context. When the client goes away the
// context is cancelled, so a sign request waiting for approval is
// abandoned and its response is never written.
package sshagent
