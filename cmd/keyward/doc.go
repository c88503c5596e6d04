// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Keyward is the command-line client for keyward-agent.
//
// It talks to the agent in two ways. Commands that only need the
// agent protocol (list, export) speak it directly over the agent
// socket, so they work against any agent named by SSH_AUTH_SOCK.
// Commands that manage the agent itself (status, identities, reload)
// use the CBOR control socket. seal encrypts a private key file with
// age so a file store can hold it at rest.
package main
