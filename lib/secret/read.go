// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxFileSize bounds ReadFile. Private key files are a few KiB at most.
const MaxFileSize = 1 << 20

// ErrEmpty is returned by ReadFile for a zero-length file.
var ErrEmpty = errors.New("secret: file is empty")

// ReadFile reads a whole file into a Buffer. The intermediate heap copy
// is zeroed before returning.
func ReadFile(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadAll(file, MaxFileSize)
}

// ReadAll reads r to EOF into a Buffer, failing if it yields more than
// limit bytes.
func ReadAll(r io.Reader, limit int64) (*Buffer, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		Zero(data)
		return nil, err
	}
	if int64(len(data)) > limit {
		Zero(data)
		return nil, fmt.Errorf("secret: input exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return NewFromBytes(data)
}
