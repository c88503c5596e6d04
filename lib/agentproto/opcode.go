// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import "fmt"

// Opcode is the first byte of a message payload.
type Opcode byte

// Opcodes handled by the message model. Values are fixed by the OpenSSH
// agent protocol (draft-miller-ssh-agent).
const (
	OpFailure           Opcode = 5
	OpSuccess           Opcode = 6
	OpRequestIdentities Opcode = 11
	OpIdentitiesAnswer  Opcode = 12
	OpSignRequest       Opcode = 13
	OpSignResponse      Opcode = 14
)

// Opcodes the protocol defines that decode to Unsupported.
const (
	OpRequestRSAIdentities       Opcode = 1
	OpRSAChallenge               Opcode = 3
	OpAddRSAIdentity             Opcode = 7
	OpRemoveRSAIdentity          Opcode = 8
	OpRemoveAllRSAIdentities     Opcode = 9
	OpAddIdentity                Opcode = 17
	OpRemoveIdentity             Opcode = 18
	OpRemoveAllIdentities        Opcode = 19
	OpAddSmartcardKey            Opcode = 20
	OpRemoveSmartcardKey         Opcode = 21
	OpLock                       Opcode = 22
	OpUnlock                     Opcode = 23
	OpAddRSAIdentityConstrained  Opcode = 24
	OpAddIdentityConstrained     Opcode = 25
	OpAddSmartcardKeyConstrained Opcode = 26
	OpExtension                  Opcode = 27
)

var opcodeNames = map[Opcode]string{
	OpFailure:                    "failure",
	OpSuccess:                    "success",
	OpRequestIdentities:          "request-identities",
	OpIdentitiesAnswer:           "identities-answer",
	OpSignRequest:                "sign-request",
	OpSignResponse:               "sign-response",
	OpRequestRSAIdentities:       "request-rsa-identities",
	OpRSAChallenge:               "rsa-challenge",
	OpAddRSAIdentity:             "add-rsa-identity",
	OpRemoveRSAIdentity:          "remove-rsa-identity",
	OpRemoveAllRSAIdentities:     "remove-all-rsa-identities",
	OpAddIdentity:                "add-identity",
	OpRemoveIdentity:             "remove-identity",
	OpRemoveAllIdentities:        "remove-all-identities",
	OpAddSmartcardKey:            "add-smartcard-key",
	OpRemoveSmartcardKey:         "remove-smartcard-key",
	OpLock:                       "lock",
	OpUnlock:                     "unlock",
	OpAddRSAIdentityConstrained:  "add-rsa-identity-constrained",
	OpAddIdentityConstrained:     "add-identity-constrained",
	OpAddSmartcardKeyConstrained: "add-smartcard-key-constrained",
	OpExtension:                  "extension",
}

// Known reports whether the protocol defines this opcode.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", byte(o))
}
