// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts private key files with
// filippo.io/age.
//
// A sealed key is an age file, binary or ASCII-armored, whose plaintext
// is an OpenSSH or PEM private key. [Open] detects the armor header and
// returns the plaintext in a [secret.Buffer]. [Seal] produces armored
// output so sealed keys stay diffable text. Identity files use the
// standard age format: one AGE-SECRET-KEY-1 line per identity, with #
// comments.
package sealed
