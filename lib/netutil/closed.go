// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small helpers shared by the socket servers.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is an ordinary end of a
// client connection: EOF, a closed connection, a broken pipe, or a
// reset. Servers log these at debug level and everything else louder.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
