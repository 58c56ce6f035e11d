// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package fork

// Well-known storage keys of Substrate-style runtimes. Pallet storage
// lives under twox128(pallet) ++ twox128(item); the digests below are
// protocol constants.
const (
	// CodeKey is the unhashed well-known key ":code" holding the runtime
	// wasm blob.
	CodeKey = "0x3a636f6465"

	// SystemAccountPrefix covers System.Account, the balances and nonce
	// records of every account.
	SystemAccountPrefix = "0x26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9"

	// SystemLastRuntimeUpgradeKey is System.LastRuntimeUpgrade. Removing
	// it makes the forked runtime run its migrations on the first block.
	SystemLastRuntimeUpgradeKey = "0x26aa394eea5630e07c48ae0c9558cef7f9cce9c888469bb1a0dceaa129672ef8"

	// SudoKeyKey is Sudo.Key, the administrative account.
	SudoKeyKey = "0x5c0d1176a568c1f92944340dbfed9e9c530ebca703c85910e7164cb7d1c9e47b"

	// GenesisMarkerKey is an arbitrary extra entry inserted so the
	// fork's genesis hash can never collide with the original chain's.
	GenesisMarkerKey = "0xdeadbeef"
)

// DefaultRules returns the rule set that makes a fork independently
// operable: trigger a runtime migration, pin the runtime code, diverge
// the genesis hash, and hand the sudo key to the operator.
//
// [code] is the hex runtime blob for the fork; [sudoKey] is the
// operator's account, skipped when empty (e.g. chains without a sudo
// pallet).
func DefaultRules(code, sudoKey string) []Rule {
	rules := []Rule{
		{Target: SystemLastRuntimeUpgradeKey, Remove: true, AllowMissing: true},
		{Target: CodeKey, Value: code, AllowMissing: true},
		{Target: GenesisMarkerKey, Value: "0x01", AllowMissing: true},
	}
	if sudoKey != "" {
		rules = append(rules, Rule{Target: SudoKeyKey, Value: sudoKey, AllowMissing: true})
	}
	return rules
}
