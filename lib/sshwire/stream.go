// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sshwire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxAgentFrameLength is the largest payload OpenSSH's own agent
// accepts (AGENT_MAX_LEN).
const MaxAgentFrameLength = 256 * 1024

// ErrFrameTooLarge is returned by ReadFrame when a frame declares a
// length above the caller's limit. The body is not read, so the stream
// is no longer aligned on a frame boundary and must be closed.
var ErrFrameTooLarge = errors.New("sshwire: frame too large")

// ReadFrame reads one frame from r and returns its payload.
//
// A stream that ends cleanly before the first byte of the length prefix
// returns io.EOF. A stream that ends anywhere inside the frame returns
// ErrTruncated. A declared length above maxLength returns an error
// wrapping ErrFrameTooLarge before any payload is allocated. A
// maxLength of zero disables the limit.
func ReadFrame(r io.Reader, maxLength uint32) ([]byte, error) {
	var prefix [LengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if maxLength > 0 && length > maxLength {
		return nil, fmt.Errorf("%w: %d bytes declared, limit %d", ErrFrameTooLarge, length, maxLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w as a single frame using one Write
// call, so a frame is never interleaved with another writer's bytes on
// a stream that serializes writes.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(EncodeFrame(payload))
	return err
}
