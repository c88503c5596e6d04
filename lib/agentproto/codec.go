// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import (
	"fmt"

	"github.com/keyward-dev/keyward/lib/sshwire"
)

// minIdentityLength is the smallest encoding of one identity: two empty
// length-prefixed fields.
const minIdentityLength = 2 * sshwire.LengthSize

// Marshal encodes m as a message payload (opcode byte followed by its
// fields). It never fails. Wrap the result with sshwire.EncodeFrame to
// put it on the wire.
func Marshal(m Message) []byte {
	var builder sshwire.Builder
	builder.WriteByte(byte(m.Opcode()))
	m.appendBody(&builder)
	return builder.Bytes()
}

// Parse decodes a message payload. Truncated fields return an error
// wrapping sshwire.ErrTruncated, an undefined opcode returns
// *UnknownOperationError, and bytes left over after the last field
// return an error wrapping ErrTrailingData.
func Parse(payload []byte) (Message, error) {
	reader := sshwire.NewReader(payload)
	code, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading opcode: %w", err)
	}

	op := Opcode(code)
	var message Message
	switch op {
	case OpRequestIdentities:
		message = RequestIdentities{}
	case OpFailure:
		message = Failure{}
	case OpSuccess:
		message = Success{}
	case OpIdentitiesAnswer:
		message, err = parseIdentitiesAnswer(reader)
	case OpSignRequest:
		message, err = parseSignRequest(reader)
	case OpSignResponse:
		message, err = parseSignResponse(reader)
	default:
		if !op.Known() {
			return nil, &UnknownOperationError{Code: code}
		}
		message = Unsupported{op: op, body: reader.Remaining()}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", op, err)
	}

	if reader.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after %s", ErrTrailingData, reader.Len(), op)
	}
	return message, nil
}

func parseIdentitiesAnswer(reader *sshwire.Reader) (IdentitiesAnswer, error) {
	count, err := reader.ReadUint32()
	if err != nil {
		return IdentitiesAnswer{}, fmt.Errorf("identity count: %w", err)
	}

	// The count comes from the peer; cap the preallocation by what the
	// remaining bytes could possibly hold.
	capacity := reader.Len() / minIdentityLength
	if uint64(count) < uint64(capacity) {
		capacity = int(count)
	}
	identities := make([]Identity, 0, capacity)

	for index := uint32(0); index < count; index++ {
		keyBlob, err := reader.ReadString()
		if err != nil {
			return IdentitiesAnswer{}, fmt.Errorf("identity %d key blob: %w", index, err)
		}
		comment, err := reader.ReadString()
		if err != nil {
			return IdentitiesAnswer{}, fmt.Errorf("identity %d comment: %w", index, err)
		}
		identities = append(identities, Identity{KeyBlob: keyBlob, Comment: string(comment)})
	}
	return IdentitiesAnswer{Identities: identities}, nil
}

func parseSignRequest(reader *sshwire.Reader) (SignRequest, error) {
	keyBlob, err := reader.ReadString()
	if err != nil {
		return SignRequest{}, fmt.Errorf("key blob: %w", err)
	}
	data, err := reader.ReadString()
	if err != nil {
		return SignRequest{}, fmt.Errorf("data: %w", err)
	}
	flags, err := reader.ReadUint32()
	if err != nil {
		return SignRequest{}, fmt.Errorf("flags: %w", err)
	}
	return SignRequest{KeyBlob: keyBlob, Data: data, Flags: SignatureFlags(flags)}, nil
}

func parseSignResponse(reader *sshwire.Reader) (SignResponse, error) {
	signature, err := reader.ReadString()
	if err != nil {
		return SignResponse{}, fmt.Errorf("signature: %w", err)
	}
	return SignResponse{Signature: signature}, nil
}
