// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/substrate-tools/forkoff/chainspec"
)

func TestSnapshotSaveLoad(t *testing.T) {
	require := require.New(t)

	snap := &Snapshot{
		At: "0x00aa",
		Pairs: chainspec.Storage{
			"0x3a636f6465": "0xdeadbeef",
			"0x00":         "0x",
		},
	}

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(snap.Save(path))

	loaded, err := LoadSnapshot(path)
	require.NoError(err)
	require.Equal(snap, loaded)
}

func TestSnapshotLoadMissing(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshotLoadMalformed(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(os.WriteFile(badJSON, []byte("{"), 0o644))
	_, err := LoadSnapshot(badJSON)
	require.Error(err)

	badHex := filepath.Join(dir, "badhex.json")
	require.NoError(os.WriteFile(badHex, []byte(`{"at":"0x00","pairs":{"zz":"0x00"}}`), 0o644))
	_, err = LoadSnapshot(badHex)
	require.Error(err)
}
