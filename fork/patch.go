// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package fork

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/utils/formatting"
)

var (
	// ErrUnknownPatchTarget reports a rule with an exact key that is
	// absent from the merged document. Silently no-op-ing a patch the
	// operator asked for risks a non-functional fork, so this is fatal.
	ErrUnknownPatchTarget = errors.New("unknown patch target")

	errInvalidRule = errors.New("invalid patch rule")
)

// Rule is one declarative override of the merged genesis storage.
type Rule struct {
	// Target is a hex-encoded key, or a hex-encoded key prefix when
	// Prefix is set.
	Target string `json:"target"`

	// Prefix makes the rule apply to every existing key sharing Target
	// as a prefix.
	Prefix bool `json:"prefix,omitempty"`

	// Remove deletes the matched keys instead of replacing their value.
	Remove bool `json:"remove,omitempty"`

	// Value is the hex-encoded replacement, required unless Remove is
	// set.
	Value string `json:"value,omitempty"`

	// AllowMissing permits an exact-key rule to insert (or skip
	// removing) a key that is absent after the merge, instead of
	// failing with ErrUnknownPatchTarget.
	AllowMissing bool `json:"allowMissing,omitempty"`
}

func (r Rule) Validate() error {
	if _, err := formatting.Decode(r.Target); err != nil {
		return fmt.Errorf("%w: target: %s", errInvalidRule, err)
	}
	if r.Remove {
		if r.Value != "" {
			return fmt.Errorf("%w: removal rule for %s carries a value", errInvalidRule, r.Target)
		}
		return nil
	}
	if _, err := formatting.Decode(r.Value); err != nil {
		return fmt.Errorf("%w: value for %s: %s", errInvalidRule, r.Target, err)
	}
	return nil
}

// LoadRules reads an ordered JSON list of rules from [path].
func LoadRules(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode patch rules %s: %w", path, err)
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d in %s: %w", i, path, err)
		}
	}
	return rules, nil
}

// Apply runs [rules] in order against the merged genesis storage of
// [spec], in place.
//
// Prefix rules match against the storage as it stood before any rule
// ran, so rules never see each other's effects when prefix-matching and
// rule order cannot change which keys a prefix expands to. Exact-key
// rules are last-write-wins within the list.
func Apply(spec *chainspec.ChainSpec, rules []Rule) error {
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	top := spec.Genesis.Raw.Top

	// Expand prefix matches against the pre-patch state.
	matched := make([][]string, len(rules))
	for i, r := range rules {
		if !r.Prefix {
			continue
		}
		for key := range top {
			if strings.HasPrefix(key, r.Target) {
				matched[i] = append(matched[i], key)
			}
		}
	}

	exists := make(map[string]bool, len(top))
	for key := range top {
		exists[key] = true
	}

	for i, r := range rules {
		switch {
		case r.Prefix:
			for _, key := range matched[i] {
				if r.Remove {
					spec.RemoveStorage(key)
				} else {
					spec.SetStorage(key, r.Value)
				}
			}
		default:
			if !exists[r.Target] && !r.AllowMissing {
				return fmt.Errorf("%w: key %s not present after merge", ErrUnknownPatchTarget, r.Target)
			}
			if r.Remove {
				spec.RemoveStorage(r.Target)
			} else {
				spec.SetStorage(r.Target, r.Value)
			}
		}
	}
	return nil
}
