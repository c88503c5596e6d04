// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short directory under /tmp for Unix sockets:
// sun_path is limited to 108 bytes and t.TempDir() paths can exceed it.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so a hung goroutine fails the test instead of stalling it.
// They are the only place tests wait on the wall clock.
//
// [UniqueID] hands out distinct identifiers for key comments and
// socket names.
//
// All helpers call t.Fatalf on failure.
package testutil
