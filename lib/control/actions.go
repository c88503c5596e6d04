// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"github.com/keyward-dev/keyward/lib/keystore/filestore"
)

// Actions served by the agent.
const (
	ActionStatus     = "status"
	ActionIdentities = "identities"
	ActionReload     = "reload"
)

// StatusResult answers ActionStatus.
type StatusResult struct {
	Version           string `cbor:"version"`
	AgentSocket       string `cbor:"agent_socket"`
	UptimeSeconds     int64  `cbor:"uptime_seconds"`
	Stores            int    `cbor:"stores"`
	ActiveConnections uint64 `cbor:"active_connections"`
	TotalConnections  uint64 `cbor:"total_connections"`
	Requests          uint64 `cbor:"requests"`
	Failures          uint64 `cbor:"failures"`
	MalformedRequests uint64 `cbor:"malformed_requests"`
}

// IdentityInfo describes one key in an ActionIdentities result.
type IdentityInfo struct {
	Comment     string `cbor:"comment"`
	Fingerprint string `cbor:"fingerprint"`
	KeyType     string `cbor:"key_type"`
	Backend     string `cbor:"backend"`

	// Source is the key directory of a file store, empty otherwise.
	Source string `cbor:"source,omitempty"`

	// Approval is set when every signature needs approval.
	Approval bool `cbor:"approval,omitempty"`
}

// IdentitiesResult answers ActionIdentities.
type IdentitiesResult struct {
	Identities []IdentityInfo `cbor:"identities"`
}

// StoreReload reports the reload of one store.
type StoreReload struct {
	Store  string           `cbor:"store"`
	Report filestore.Report `cbor:"report"`
	Error  string           `cbor:"error,omitempty"`
}

// ReloadResult answers ActionReload.
type ReloadResult struct {
	Stores          []StoreReload `cbor:"stores"`
	PublicKeyFiles  int           `cbor:"public_key_files"`
	PublicKeysError string        `cbor:"public_keys_error,omitempty"`
}
