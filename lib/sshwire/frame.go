// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sshwire

import (
	"encoding/binary"
	"errors"
)

// LengthSize is the width of a frame's length prefix and of a fixed
// integer field.
const LengthSize = 4

// ErrTruncated is returned when a buffer or stream ends before a length
// prefix, a fixed integer, or a declared body is complete.
var ErrTruncated = errors.New("sshwire: truncated data")

// DecodeFrame reads one length-prefixed frame from the start of buffer.
// It returns the payload and the number of bytes (length prefix plus
// payload) the caller must drop before decoding the next item.
//
// On failure nothing is consumed: consumed is 0 and the error is
// ErrTruncated. The returned payload aliases buffer; callers that keep
// it beyond the buffer's lifetime must copy it.
func DecodeFrame(buffer []byte) (payload []byte, consumed int, err error) {
	if len(buffer) < LengthSize {
		return nil, 0, ErrTruncated
	}
	length := binary.BigEndian.Uint32(buffer[:LengthSize])
	if uint64(length) > uint64(len(buffer)-LengthSize) {
		return nil, 0, ErrTruncated
	}
	end := LengthSize + int(length)
	return buffer[LengthSize:end:end], end, nil
}

// EncodeFrame returns payload preceded by its 4-byte big-endian length.
// No size limit is enforced here; the maximum sane frame size is a
// transport policy (see ReadFrame).
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, LengthSize+len(payload))
	binary.BigEndian.PutUint32(out[:LengthSize], uint32(len(payload)))
	copy(out[LengthSize:], payload)
	return out
}

// AppendFrame appends the frame encoding of payload to destination.
func AppendFrame(destination, payload []byte) []byte {
	destination = binary.BigEndian.AppendUint32(destination, uint32(len(payload)))
	return append(destination, payload...)
}

// DecodeFixedUint32 reads the first four bytes of buffer as a big-endian
// unsigned integer. It does not interpret the value as a length and
// reads no body. Returns ErrTruncated if fewer than four bytes remain.
func DecodeFixedUint32(buffer []byte) (uint32, error) {
	if len(buffer) < LengthSize {
		return 0, ErrTruncated
	}
	return uint32(buffer[0])<<24 | uint32(buffer[1])<<16 | uint32(buffer[2])<<8 | uint32(buffer[3]), nil
}
