// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package agentproto

import (
	"errors"
	"fmt"
)

// ErrTrailingData is returned by Parse when bytes remain after every
// field the opcode defines has been decoded.
var ErrTrailingData = errors.New("agentproto: trailing data after message")

// UnknownOperationError is returned by Parse when the opcode byte is not
// defined by the agent protocol.
type UnknownOperationError struct {
	Code byte
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("agentproto: unknown operation %d", e.Code)
}
