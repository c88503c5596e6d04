// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package sshwire

import "encoding/binary"

// Reader walks a payload field by field. Each read either consumes a
// whole field or consumes nothing and returns ErrTruncated, so a failed
// read leaves the cursor where it was.
//
// Strings returned by ReadString are copies and stay valid after the
// underlying payload is reused.
type Reader struct {
	remaining []byte
}

// NewReader returns a Reader positioned at the start of payload. The
// payload is not modified.
func NewReader(payload []byte) *Reader {
	return &Reader{remaining: payload}
}

// ReadByte consumes one byte.
func (r *Reader) ReadByte() (byte, error) {
	if len(r.remaining) == 0 {
		return 0, ErrTruncated
	}
	value := r.remaining[0]
	r.remaining = r.remaining[1:]
	return value, nil
}

// ReadUint32 consumes a fixed 4-byte big-endian integer.
func (r *Reader) ReadUint32() (uint32, error) {
	value, err := DecodeFixedUint32(r.remaining)
	if err != nil {
		return 0, err
	}
	r.remaining = r.remaining[LengthSize:]
	return value, nil
}

// ReadString consumes a length-prefixed field and returns a copy of its
// body. A zero-length field returns an empty, non-nil slice.
func (r *Reader) ReadString() ([]byte, error) {
	body, consumed, err := DecodeFrame(r.remaining)
	if err != nil {
		return nil, err
	}
	r.remaining = r.remaining[consumed:]
	return append([]byte{}, body...), nil
}

// Len reports how many undecoded bytes remain.
func (r *Reader) Len() int {
	return len(r.remaining)
}

// Remaining returns a copy of the undecoded bytes and consumes them.
func (r *Reader) Remaining() []byte {
	rest := append([]byte{}, r.remaining...)
	r.remaining = r.remaining[len(r.remaining):]
	return rest
}

// Builder accumulates a payload. Writes never fail.
type Builder struct {
	buffer []byte
}

// WriteByte appends one byte. The error is always nil; the signature
// matches io.ByteWriter.
func (b *Builder) WriteByte(value byte) error {
	b.buffer = append(b.buffer, value)
	return nil
}

// WriteUint32 appends a fixed 4-byte big-endian integer.
func (b *Builder) WriteUint32(value uint32) {
	b.buffer = binary.BigEndian.AppendUint32(b.buffer, value)
}

// WriteString appends a length-prefixed field.
func (b *Builder) WriteString(body []byte) {
	b.buffer = AppendFrame(b.buffer, body)
}

// WriteRaw appends bytes with no prefix.
func (b *Builder) WriteRaw(raw []byte) {
	b.buffer = append(b.buffer, raw...)
}

// Bytes returns the accumulated payload. The slice aliases the
// builder's storage until the next write.
func (b *Builder) Bytes() []byte {
	return b.buffer
}
