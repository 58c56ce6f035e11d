// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Storage keys and values travel over the wire and land in chain-spec
// documents as 0x-prefixed lowercase hex. Encode and Decode are inverses
// for every byte string; Decode rejects anything Encode cannot produce.
var (
	ErrMalformed = errors.New("malformed hex encoding")

	errMissingHexPrefix = fmt.Errorf("%w: missing 0x prefix", ErrMalformed)
	errOddLength        = fmt.Errorf("%w: odd length", ErrMalformed)
	errInvalidCharacter = fmt.Errorf("%w: invalid character", ErrMalformed)
)

// Encode returns the 0x-prefixed lowercase hex representation of [b].
func Encode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// Decode parses a 0x-prefixed lowercase hex string into the bytes it
// represents. The empty payload "0x" decodes to an empty byte slice.
func Decode(str string) ([]byte, error) {
	if len(str) < 2 || str[0] != '0' || str[1] != 'x' {
		return nil, fmt.Errorf("%w: %q", errMissingHexPrefix, clip(str))
	}
	payload := str[2:]
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: %q", errOddLength, clip(str))
	}
	for i := 0; i < len(payload); i++ {
		c := payload[i]
		// Uppercase digits are rejected so that every byte string has
		// exactly one textual form.
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return nil, fmt.Errorf("%w %q in %q", errInvalidCharacter, string(c), clip(str))
		}
	}
	b, err := hex.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return b, nil
}

// Valid reports whether [str] is a well formed encoded byte string.
func Valid(str string) bool {
	_, err := Decode(str)
	return err == nil
}

// clip truncates long inputs in error messages; a runtime blob is several
// megabytes of hex and would drown the actual failure.
func clip(str string) string {
	const max = 64
	if len(str) <= max {
		return str
	}
	return str[:max] + "..."
}
