// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package fork

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/utils/formatting"
)

func TestKeepPrefixesPassThrough(t *testing.T) {
	require := require.New(t)

	snap := chainspec.Storage{
		"0xaa11": "0x00",
		"0xbb22": "0x11",
	}
	out, err := KeepPrefixes(snap, nil)
	require.NoError(err)
	require.Equal(snap, out)
}

func TestKeepPrefixes(t *testing.T) {
	require := require.New(t)

	snap := chainspec.Storage{
		"0xaa11":                     "0x00",
		"0xaa22":                     "0x11",
		"0xbb33":                     "0x22",
		SystemAccountPrefix + "0001": "0x33",
	}
	out, err := KeepPrefixes(snap, []string{"0xaa"})
	require.NoError(err)
	require.Equal(chainspec.Storage{
		"0xaa11":                     "0x00",
		"0xaa22":                     "0x11",
		SystemAccountPrefix + "0001": "0x33",
	}, out)
}

func TestKeepPrefixesAlwaysRetainsAccounts(t *testing.T) {
	require := require.New(t)

	snap := chainspec.Storage{
		SystemAccountPrefix + "0001": "0x00",
		"0xbb33":                     "0x11",
	}
	// A filter naming no pallet at all still keeps the account records.
	out, err := KeepPrefixes(snap, []string{"0xcc"})
	require.NoError(err)
	require.Equal(chainspec.Storage{
		SystemAccountPrefix + "0001": "0x00",
	}, out)
}

func TestKeepPrefixesInvalidPrefix(t *testing.T) {
	require := require.New(t)

	for _, prefix := range []string{"aa", "0xz", "0x001"} {
		_, err := KeepPrefixes(chainspec.Storage{"0xaa": "0x00"}, []string{prefix})
		require.ErrorIs(err, formatting.ErrMalformed, prefix)
	}
}

func TestKeepPrefixesDoesNotMutateInput(t *testing.T) {
	require := require.New(t)

	snap := chainspec.Storage{
		"0xaa11": "0x00",
		"0xbb22": "0x11",
	}
	_, err := KeepPrefixes(snap, []string{"0xaa"})
	require.NoError(err)
	require.Len(snap, 2)
}
