// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package fork

import (
	"fmt"
	"strings"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/utils/formatting"
)

// KeepPrefixes restricts a crawled snapshot to the storage of selected
// pallets before it is merged. Only keys falling under one of the hex
// [prefixes] survive; System.Account is always retained on top of the
// requested set, because a chain without its account records is not
// operable. With no prefixes the snapshot passes through whole.
func KeepPrefixes(snap chainspec.Storage, prefixes []string) (chainspec.Storage, error) {
	if len(prefixes) == 0 {
		return snap, nil
	}

	keep := make([]string, 0, len(prefixes)+1)
	keep = append(keep, SystemAccountPrefix)
	for _, p := range prefixes {
		if _, err := formatting.Decode(p); err != nil {
			return nil, fmt.Errorf("keep prefix: %w", err)
		}
		keep = append(keep, p)
	}

	out := chainspec.Storage{}
	for key, value := range snap {
		for _, p := range keep {
			if strings.HasPrefix(key, p) {
				out[key] = value
				break
			}
		}
	}
	return out, nil
}
