// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package approval puts a confirmation step in front of a signing
// backend.
//
// An [Approver] decides whether one signature may be produced. It may
// take arbitrary time (a user clicking a dialog, touching a device) and
// must give up when its context is cancelled. [Gate] wraps a
// keydir.Backend so every Sign waits for the approver, bounded by a
// timeout measured on an injected clock.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/keyward-dev/keyward/lib/keydir"
)

// Request describes the signature awaiting approval.
type Request struct {
	// Backend is the name of the backend holding the key.
	Backend string

	// Comment is the key's comment.
	Comment string

	// Fingerprint is the key's SHA256 fingerprint.
	Fingerprint string

	// DataDigest is the hex SHA-256 of the data to be signed, for
	// display only.
	DataDigest string
}

// NewRequest describes a pending signature by identity over data.
func NewRequest(identity keydir.Identity, backend string, data []byte) Request {
	digest := sha256.Sum256(data)
	return Request{
		Backend:     backend,
		Comment:     identity.Comment,
		Fingerprint: identity.Fingerprint(),
		DataDigest:  hex.EncodeToString(digest[:]),
	}
}

// Prompt is the human-readable question shown to the user.
func (r Request) Prompt() string {
	return fmt.Sprintf("Allow use of key %q (%s)?", r.Comment, r.Fingerprint)
}

// Approver decides whether a signature may proceed. Approve returns nil
// to allow, an error wrapping keydir.ErrApprovalDenied to refuse, or
// ctx.Err() when cancelled.
type Approver interface {
	Approve(ctx context.Context, request Request) error
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, request Request) error

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, request Request) error {
	return f(ctx, request)
}

// Always approves every request.
func Always() Approver {
	return ApproverFunc(func(context.Context, Request) error { return nil })
}

// Never refuses every request.
func Never() Approver {
	return ApproverFunc(func(context.Context, Request) error { return keydir.ErrApprovalDenied })
}

// Command runs an external program for each request, in the style of
// ssh-askpass: the prompt is passed as the last argument and
// SSH_ASKPASS_PROMPT=confirm is set. Request details are also exported
// as KEYWARD_APPROVAL_* environment variables. Exit status 0 approves;
// any other exit status refuses. The program is killed when the
// context is cancelled.
func Command(argv []string) Approver {
	argv = append([]string(nil), argv...)
	return ApproverFunc(func(ctx context.Context, request Request) error {
		if len(argv) == 0 {
			return fmt.Errorf("approval command is empty: %w", keydir.ErrUnavailable)
		}
		arguments := append(append([]string(nil), argv[1:]...), request.Prompt())
		command := exec.CommandContext(ctx, argv[0], arguments...)
		command.Env = append(os.Environ(),
			"SSH_ASKPASS_PROMPT=confirm",
			"KEYWARD_APPROVAL_BACKEND="+request.Backend,
			"KEYWARD_APPROVAL_COMMENT="+request.Comment,
			"KEYWARD_APPROVAL_FINGERPRINT="+request.Fingerprint,
			"KEYWARD_APPROVAL_DIGEST="+request.DataDigest,
		)

		err := command.Run()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %w", argv[0], exitErr.ExitCode(), keydir.ErrApprovalDenied)
		}
		return fmt.Errorf("running %s: %v: %w", argv[0], err, keydir.ErrUnavailable)
	})
}
