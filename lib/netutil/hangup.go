// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"errors"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// hangupPollMillis is how often WaitHangup rechecks ctx.
const hangupPollMillis = 100

// ErrNotPollable is returned by WaitHangup for connections without a
// file descriptor.
var ErrNotPollable = errors.New("netutil: connection has no file descriptor")

// WaitHangup blocks until the peer of conn has closed both directions,
// then returns nil. A peer that only shut down its write side is still
// connected and keeps WaitHangup waiting. It returns ctx.Err() when ctx
// ends first and an error when conn cannot be polled or is closed
// locally.
func WaitHangup(ctx context.Context, conn net.Conn) error {
	syscallConn, ok := conn.(syscall.Conn)
	if !ok {
		return ErrNotPollable
	}
	raw, err := syscallConn.SyscallConn()
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			hungUp  bool
			pollErr error
		)
		// No requested events: POLLHUP and POLLERR are always reported,
		// and POLLIN would fire forever on a half-closed socket.
		controlErr := raw.Control(func(fd uintptr) {
			fds := []unix.PollFd{{Fd: int32(fd)}}
			_, pollErr = unix.Poll(fds, hangupPollMillis)
			hungUp = fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
		})
		if controlErr != nil {
			return controlErr
		}
		if pollErr != nil && !errors.Is(pollErr, unix.EINTR) {
			return pollErr
		}
		if hungUp {
			return nil
		}
	}
}
