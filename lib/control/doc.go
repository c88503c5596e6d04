// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements keyward's management socket.
//
// The protocol is one CBOR request and one CBOR response per
// connection. A request is a map with an "action" field plus
// action-specific fields. Every response is a [Response] envelope:
// {ok, error, data}. [Server] routes requests to registered
// [ActionFunc] handlers; [Call] is the matching client.
//
// The agent registers the actions named by the Action constants, and
// the request and result types for them live here so the agent and the
// keyward CLI share one definition.
package control
