// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"os"
)

// ReadFile reads a secret such as an age identity from path into a
// protected buffer. Surrounding whitespace is trimmed; an empty result
// is an error. The heap copy read from disk is zeroed before return.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s is empty", path)
	}
	return NewFromBytes(trimmed)
}

// FromString moves a secret obtained as a string, such as an
// environment variable, into a protected buffer. The string itself
// cannot be wiped; callers should drop it promptly.
func FromString(value string) (*Buffer, error) {
	return NewFromBytes([]byte(value))
}
