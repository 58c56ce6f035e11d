// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Viper keys; every flag can also come from a config file.
const (
	ConfigFileKey = "config-file"
	VersionKey    = "version"

	RPCURIKey        = "rpc-uri"
	AtKey            = "at"
	BinaryKey        = "bin"
	BaseChainKey     = "base-chain"
	OriginalChainKey = "original-chain"
	OutKey           = "out"
	SnapshotFileKey  = "snapshot"
	RulesFileKey     = "rules"
	RuntimeWasmKey   = "runtime"
	NameKey          = "name"
	IDKey            = "id"
	SudoKeyKey       = "sudo-key"
	PrefixesKey      = "prefixes"

	PageSizeKey          = "page-size"
	ValueBatchKey        = "value-batch"
	ConcurrencyKey       = "concurrency"
	MaxAttemptsKey       = "max-attempts"
	RetryInitialDelayKey = "retry-initial-delay"
	RetryMaxDelayKey     = "retry-max-delay"

	LogLevelKey = "log-level"
)

// Alice's sr25519 public key, the conventional development sudo holder.
const defaultSudoKey = "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

// Config is the parsed invocation of the tool.
type Config struct {
	DisplayVersionAndExit bool

	RPCURI        string
	At            string
	Binary        string
	BaseChain     string
	OriginalChain string
	Out           string
	SnapshotFile  string
	RulesFile     string
	RuntimeWasm   string
	Name          string
	ID            string
	SudoKey       string
	Prefixes      []string

	PageSize          uint32
	ValueBatch        int
	Concurrency       int64
	MaxAttempts       int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	LogLevel string
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("forkoff", pflag.ContinueOnError)

	fs.String(ConfigFileKey, "", "Path to a config file supplying any of the flags below")
	fs.Bool(VersionKey, false, "Print the version and exit")

	fs.String(RPCURIKey, "ws://127.0.0.1:9944", "RPC endpoint of the live node to fork (ws://, wss://, http:// or https://)")
	fs.String(AtKey, "", "Block hash to crawl state at; defaults to the finalized head pinned at crawl start")
	fs.String(BinaryKey, "", "Path to the node binary used to generate the baseline spec")
	fs.String(BaseChainKey, "dev", "Chain whose build-spec output is the baseline for the fork")
	fs.String(OriginalChainKey, "", "Chain being forked; supplies default name, id and protocol id")
	fs.StringP(OutKey, "o", "fork.json", "Path to write the fork's chain spec to")
	fs.String(SnapshotFileKey, "", "Path to a snapshot cache; reused when present, written after a crawl otherwise")
	fs.String(RulesFileKey, "", "Path to a JSON file with additional patch rules, applied after the built-in ones")
	fs.String(RuntimeWasmKey, "", "Path to a runtime wasm blob overriding the on-chain :code")
	fs.String(NameKey, "", "Name of the forked chain; defaults to \"<original>-fork\"")
	fs.String(IDKey, "", "Id of the forked chain; defaults to \"<original>-fork\"")
	fs.String(SudoKeyKey, defaultSudoKey, "Account key to install as Sudo.Key; empty to leave the sudo key untouched")
	fs.StringSlice(PrefixesKey, nil, "Hex storage key prefixes to keep from the crawl; keeps everything when empty. System.Account is always kept")

	fs.Uint32(PageSizeKey, 512, "Keys requested per enumeration page")
	fs.Int(ValueBatchKey, 64, "Keys per storage value query")
	fs.Int64(ConcurrencyKey, 16, "Maximum in-flight value queries")
	fs.Int(MaxAttemptsKey, 8, "Attempts per RPC call before the crawl aborts")
	fs.Duration(RetryInitialDelayKey, 100*time.Millisecond, "Backoff before the first retry")
	fs.Duration(RetryMaxDelayKey, 8*time.Second, "Backoff cap")

	fs.String(LogLevelKey, "info", "Log level (debug, info, warn, error)")
	return fs
}

// GetConfig parses [args] (usually os.Args[1:]) into a Config.
func GetConfig(args []string) (Config, error) {
	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, err
	}
	if v.IsSet(ConfigFileKey) && v.GetString(ConfigFileKey) != "" {
		v.SetConfigFile(os.ExpandEnv(v.GetString(ConfigFileKey)))
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	c := Config{
		DisplayVersionAndExit: v.GetBool(VersionKey),

		RPCURI:        v.GetString(RPCURIKey),
		At:            v.GetString(AtKey),
		Binary:        v.GetString(BinaryKey),
		BaseChain:     v.GetString(BaseChainKey),
		OriginalChain: v.GetString(OriginalChainKey),
		Out:           v.GetString(OutKey),
		SnapshotFile:  v.GetString(SnapshotFileKey),
		RulesFile:     v.GetString(RulesFileKey),
		RuntimeWasm:   v.GetString(RuntimeWasmKey),
		Name:          v.GetString(NameKey),
		ID:            v.GetString(IDKey),
		SudoKey:       v.GetString(SudoKeyKey),
		Prefixes:      v.GetStringSlice(PrefixesKey),

		PageSize:          v.GetUint32(PageSizeKey),
		ValueBatch:        v.GetInt(ValueBatchKey),
		Concurrency:       v.GetInt64(ConcurrencyKey),
		MaxAttempts:       v.GetInt(MaxAttemptsKey),
		RetryInitialDelay: v.GetDuration(RetryInitialDelayKey),
		RetryMaxDelay:     v.GetDuration(RetryMaxDelayKey),

		LogLevel: v.GetString(LogLevelKey),
	}

	if c.DisplayVersionAndExit {
		return c, nil
	}
	if c.Binary == "" {
		return Config{}, fmt.Errorf("--%s is required to generate the baseline spec", BinaryKey)
	}
	if c.Out == "" {
		return Config{}, fmt.Errorf("--%s must not be empty", OutKey)
	}
	return c, nil
}
