// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package formatting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	require := require.New(t)

	inputs := [][]byte{
		nil,
		{},
		{0},
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 255},
		{0x3a, 0x63, 0x6f, 0x64, 0x65}, // ":code"
	}
	for _, in := range inputs {
		out, err := Decode(Encode(in))
		require.NoError(err)
		require.Equal(len(in), len(out))
		for i := range in {
			require.Equal(in[i], out[i])
		}
	}
}

func TestHexEncode(t *testing.T) {
	require := require.New(t)

	require.Equal("0x", Encode(nil))
	require.Equal("0x00010203040506070809ff", Encode([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 255}))
}

func TestHexDecodeMissingPrefix(t *testing.T) {
	require := require.New(t)

	for _, str := range []string{"", "0", "00010203", "x00", "1x00"} {
		_, err := Decode(str)
		require.ErrorIs(err, ErrMalformed, str)
		require.ErrorIs(err, errMissingHexPrefix, str)
	}
}

func TestHexDecodeOddLength(t *testing.T) {
	require := require.New(t)

	_, err := Decode("0x001")
	require.ErrorIs(err, ErrMalformed)
	require.ErrorIs(err, errOddLength)
}

func TestHexDecodeInvalidCharacter(t *testing.T) {
	require := require.New(t)

	for _, str := range []string{"0x0Z", "0x0017afa0Zd", "0xgg", "0x0A"} {
		_, err := Decode(str)
		require.ErrorIs(err, ErrMalformed, str)
		require.ErrorIs(err, errInvalidCharacter, str)
	}
}

func TestHexErrorsAreMalformed(t *testing.T) {
	require := require.New(t)

	for _, err := range []error{errMissingHexPrefix, errOddLength, errInvalidCharacter} {
		require.True(errors.Is(err, ErrMalformed))
	}
}

func TestHexValid(t *testing.T) {
	require := require.New(t)

	require.True(Valid("0x"))
	require.True(Valid("0xdeadbeef"))
	require.False(Valid("deadbeef"))
	require.False(Valid("0xDEADBEEF"))
}
