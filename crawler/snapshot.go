// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package crawler

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/utils/formatting"
)

// Snapshot is the complete storage of a node at one pinned block. The
// block hash is carried for diagnostics; merging only consumes Pairs.
type Snapshot struct {
	At    string            `json:"at"`
	Pairs chainspec.Storage `json:"pairs"`
}

// LoadSnapshot reads a previously saved snapshot. Crawling a large chain
// takes a while; a cached snapshot lets repeated fork runs skip it.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(b, snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	if snap.At != "" {
		if _, err := formatting.Decode(snap.At); err != nil {
			return nil, fmt.Errorf("snapshot %s: block hash: %w", path, err)
		}
	}
	if err := snap.Pairs.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Save writes the snapshot to [path] via a temporary file so an
// interrupted save never leaves a truncated cache behind.
func (s *Snapshot) Save(path string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
