// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package chainspec

import (
	"encoding/json"
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/substrate-tools/forkoff/utils/formatting"
)

// Storage is one trie's worth of genesis state: hex-encoded key to
// hex-encoded value. The textual hex form is order preserving, so
// lexicographic order of the strings matches byte order of the
// underlying keys.
type Storage map[string]string

// Validate checks that every key and value is well formed hex.
func (s Storage) Validate() error {
	for k, v := range s {
		if _, err := formatting.Decode(k); err != nil {
			return fmt.Errorf("storage key: %w", err)
		}
		if _, err := formatting.Decode(v); err != nil {
			return fmt.Errorf("value of key %s: %w", k, err)
		}
	}
	return nil
}

// Clone returns an independent copy of [s].
func (s Storage) Clone() Storage {
	if s == nil {
		return Storage{}
	}
	return maps.Clone(s)
}

// ChainSpec is a raw chain specification: network identity plus the
// genesis storage the new chain starts from. The field set mirrors the
// document emitted by a node's build-spec command.
type ChainSpec struct {
	Name               string          `json:"name"`
	ID                 string          `json:"id"`
	ChainType          string          `json:"chainType"`
	BootNodes          []string        `json:"bootNodes"`
	TelemetryEndpoints json.RawMessage `json:"telemetryEndpoints"`
	ProtocolID         *string         `json:"protocolId"`
	Properties         json.RawMessage `json:"properties"`
	CodeSubstitutes    json.RawMessage `json:"codeSubstitutes"`
	Genesis            Genesis         `json:"genesis"`
}

type Genesis struct {
	Raw RawGenesis `json:"raw"`
}

type RawGenesis struct {
	Top             Storage            `json:"top"`
	ChildrenDefault map[string]Storage `json:"childrenDefault"`
}

// Parse decodes a raw chain-spec document and validates its genesis
// storage. A spec that fails hex validation cannot be merged safely and
// is rejected here, at the boundary.
func Parse(b []byte) (*ChainSpec, error) {
	spec := &ChainSpec{}
	if err := json.Unmarshal(b, spec); err != nil {
		return nil, fmt.Errorf("failed to decode chain spec: %w", err)
	}
	if spec.Genesis.Raw.Top == nil {
		return nil, fmt.Errorf("chain spec %q has no raw genesis storage", spec.ID)
	}
	if err := spec.Genesis.Raw.Top.Validate(); err != nil {
		return nil, fmt.Errorf("genesis storage of %q: %w", spec.ID, err)
	}
	for child, storage := range spec.Genesis.Raw.ChildrenDefault {
		if err := storage.Validate(); err != nil {
			return nil, fmt.Errorf("child trie %s of %q: %w", child, spec.ID, err)
		}
	}
	return spec, nil
}

// Bytes serializes the spec. Output is deterministic: encoding/json
// emits map keys in sorted order, which for the hex-string keys of
// [Storage] is exactly lexicographic byte order, so identical documents
// always produce byte-identical artifacts.
func (s *ChainSpec) Bytes() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// SetStorage inserts or replaces one top trie entry.
func (s *ChainSpec) SetStorage(key, value string) {
	if s.Genesis.Raw.Top == nil {
		s.Genesis.Raw.Top = Storage{}
	}
	s.Genesis.Raw.Top[key] = value
}

// RemoveStorage deletes one top trie entry if present.
func (s *ChainSpec) RemoveStorage(key string) {
	delete(s.Genesis.Raw.Top, key)
}
