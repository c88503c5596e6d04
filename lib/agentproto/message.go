// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import (
	"bytes"
	"fmt"

	"github.com/keyward-dev/keyward/lib/sshwire"
)

// Message is one decoded agent request or response. The concrete types
// in this package are the only implementations.
type Message interface {
	Opcode() Opcode
	appendBody(builder *sshwire.Builder)
}

// SignatureFlags is the bit field carried by a sign request. Bits this
// package does not name are preserved unchanged.
type SignatureFlags uint32

// Signature flag bits defined by the agent protocol.
const (
	// FlagRSASHA256 asks for an rsa-sha2-256 signature from an RSA key.
	FlagRSASHA256 SignatureFlags = 0x02
	// FlagRSASHA512 asks for an rsa-sha2-512 signature from an RSA key.
	FlagRSASHA512 SignatureFlags = 0x04
)

// Identity is one (public key blob, comment) pair in an identities
// answer.
type Identity struct {
	KeyBlob []byte
	Comment string
}

// RequestIdentities asks the agent to list every key it holds.
type RequestIdentities struct{}

// IdentitiesAnswer lists identities in the order the agent enumerated
// them.
type IdentitiesAnswer struct {
	Identities []Identity
}

// SignRequest asks for a signature over Data by the key whose public
// blob is KeyBlob. Data is signed as-is.
type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   SignatureFlags
}

// SignResponse carries an SSH-encoded signature blob.
type SignResponse struct {
	Signature []byte
}

// Failure is the generic failure response. It has no fields.
type Failure struct{}

// Success is the generic success response. It has no fields.
type Success struct{}

// Unsupported is a message whose opcode the protocol defines but this
// package does not model field by field. The body after the opcode byte
// is kept verbatim.
type Unsupported struct {
	op   Opcode
	body []byte
}

// NewUnsupported builds an Unsupported message. The opcode must be one
// the protocol defines and this package does not model; anything else
// would not survive a Marshal/Parse round trip.
func NewUnsupported(op Opcode, body []byte) (Unsupported, error) {
	if !op.Known() {
		return Unsupported{}, &UnknownOperationError{Code: byte(op)}
	}
	if modeled(op) {
		return Unsupported{}, fmt.Errorf("agentproto: opcode %s has a dedicated message type", op)
	}
	return Unsupported{op: op, body: append([]byte{}, body...)}, nil
}

// Body returns a copy of the bytes after the opcode.
func (u Unsupported) Body() []byte { return append([]byte{}, u.body...) }

func (RequestIdentities) Opcode() Opcode { return OpRequestIdentities }
func (IdentitiesAnswer) Opcode() Opcode  { return OpIdentitiesAnswer }
func (SignRequest) Opcode() Opcode       { return OpSignRequest }
func (SignResponse) Opcode() Opcode      { return OpSignResponse }
func (Failure) Opcode() Opcode           { return OpFailure }
func (Success) Opcode() Opcode           { return OpSuccess }
func (u Unsupported) Opcode() Opcode     { return u.op }

func (RequestIdentities) appendBody(*sshwire.Builder) {}
func (Failure) appendBody(*sshwire.Builder)           {}
func (Success) appendBody(*sshwire.Builder)           {}

func (m IdentitiesAnswer) appendBody(builder *sshwire.Builder) {
	builder.WriteUint32(uint32(len(m.Identities)))
	for _, identity := range m.Identities {
		builder.WriteString(identity.KeyBlob)
		builder.WriteString([]byte(identity.Comment))
	}
}

func (m SignRequest) appendBody(builder *sshwire.Builder) {
	builder.WriteString(m.KeyBlob)
	builder.WriteString(m.Data)
	builder.WriteUint32(uint32(m.Flags))
}

func (m SignResponse) appendBody(builder *sshwire.Builder) {
	builder.WriteString(m.Signature)
}

func (u Unsupported) appendBody(builder *sshwire.Builder) {
	builder.WriteRaw(u.body)
}

func modeled(op Opcode) bool {
	switch op {
	case OpFailure, OpSuccess, OpRequestIdentities, OpIdentitiesAnswer, OpSignRequest, OpSignResponse:
		return true
	}
	return false
}

// Equal reports whether two messages encode to the same bytes. Nil and
// empty byte fields compare equal.
func Equal(a, b Message) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return bytes.Equal(Marshal(a), Marshal(b))
}
