// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package crawler

import (
	"context"
	"fmt"

	"github.com/substrate-tools/forkoff/utils/rpc"
)

// StateClient is the node-specific RPC surface the crawler needs: pin a
// block, enumerate keys after a cursor, and fetch values at the pinned
// block. Method names differ between node implementations, so the
// concrete adapter is pluggable.
type StateClient interface {
	// FinalizedHead returns the hash of the latest finalized block.
	FinalizedHead(ctx context.Context) (string, error)

	// KeysPaged returns up to [count] storage keys lexicographically
	// greater than [startKey] (all keys when [startKey] is empty), at
	// block [at].
	KeysPaged(ctx context.Context, count uint32, startKey string, at string) ([]string, error)

	// StorageAt returns the values of [keys] at block [at]. Keys deleted
	// at [at] are absent from the result.
	StorageAt(ctx context.Context, keys []string, at string) (map[string]string, error)
}

var _ StateClient = (*substrateClient)(nil)

// substrateClient speaks the standard Substrate state/chain RPC methods.
type substrateClient struct {
	requester rpc.EndpointRequester
}

// NewSubstrateClient returns a StateClient for a Substrate node reachable
// through [requester].
func NewSubstrateClient(requester rpc.EndpointRequester) StateClient {
	return &substrateClient{requester: requester}
}

func (c *substrateClient) FinalizedHead(ctx context.Context) (string, error) {
	var head string
	err := c.requester.SendRequest(ctx, "chain_getFinalizedHead", []interface{}{}, &head)
	if err != nil {
		return "", fmt.Errorf("chain_getFinalizedHead: %w", err)
	}
	return head, nil
}

func (c *substrateClient) KeysPaged(ctx context.Context, count uint32, startKey string, at string) ([]string, error) {
	params := []interface{}{
		"0x", // no prefix filter, the whole key space
		count,
	}
	if startKey == "" {
		params = append(params, nil, at)
	} else {
		params = append(params, startKey, at)
	}

	var keys []string
	if err := c.requester.SendRequest(ctx, "state_getKeysPaged", params, &keys); err != nil {
		return nil, fmt.Errorf("state_getKeysPaged after %q: %w", startKey, err)
	}
	return keys, nil
}

// queryStorageResult mirrors the state_queryStorageAt response: one set
// of changes per queried block. Values are null for keys without a value
// at that block.
type queryStorageResult struct {
	Block   string      `json:"block"`
	Changes [][]*string `json:"changes"`
}

func (c *substrateClient) StorageAt(ctx context.Context, keys []string, at string) (map[string]string, error) {
	params := []interface{}{keys, at}

	var results []queryStorageResult
	if err := c.requester.SendRequest(ctx, "state_queryStorageAt", params, &results); err != nil {
		return nil, fmt.Errorf("state_queryStorageAt for %d keys: %w", len(keys), err)
	}

	values := make(map[string]string, len(keys))
	for _, result := range results {
		for _, change := range result.Changes {
			if len(change) != 2 || change[0] == nil {
				return nil, fmt.Errorf("state_queryStorageAt returned malformed change set at block %s", result.Block)
			}
			if change[1] == nil {
				continue
			}
			values[*change[0]] = *change[1]
		}
	}
	return values, nil
}
