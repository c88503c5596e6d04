// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// keyward-agent serves SSH keys to ssh, git and anything else that
// speaks the OpenSSH agent protocol over SSH_AUTH_SOCK.
//
// Keys come from the stores listed in the configuration file: key
// directories that are rescanned on reload, and directories copied
// into memory once at startup. Keys may be age-sealed. Every signature
// can be gated by an approval command. Clients can list keys and
// request signatures; requests that would change the agent's key set
// are refused.
//
// A second socket, the control socket, serves status, key listing and
// reload to the keyward CLI.
//
// Usage:
//
//	keyward-agent [--config FILE] [--socket PATH] [--control-socket PATH]
//	              [--log-level LEVEL] [--log-format json|text]
package main
