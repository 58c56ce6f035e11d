// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package fork

import (
	"github.com/substrate-tools/forkoff/chainspec"
)

// Merge layers the crawled snapshot over the baseline specification's
// genesis storage and returns a new document; neither input is modified.
//
// Precedence is by set membership, not value comparison: a key present
// in the crawl always takes its crawled value, a key present only in the
// baseline keeps the baseline's value. The baseline supplies
// schema-correct defaults for keys the live chain predates; the crawl is
// ground truth for everything the live chain actually has.
//
// Network metadata (name, id, boot nodes, telemetry, protocol id) comes
// entirely from the baseline. Only genesis storage is merged.
func Merge(baseline *chainspec.ChainSpec, snap chainspec.Storage) *chainspec.ChainSpec {
	merged := *baseline

	merged.BootNodes = append([]string(nil), baseline.BootNodes...)

	top := baseline.Genesis.Raw.Top.Clone()
	for key, value := range snap {
		top[key] = value
	}
	merged.Genesis.Raw.Top = top

	children := make(map[string]chainspec.Storage, len(baseline.Genesis.Raw.ChildrenDefault))
	for child, storage := range baseline.Genesis.Raw.ChildrenDefault {
		children[child] = storage.Clone()
	}
	merged.Genesis.Raw.ChildrenDefault = children

	return &merged
}
