// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/config"
	"github.com/substrate-tools/forkoff/crawler"
	"github.com/substrate-tools/forkoff/fork"
	"github.com/substrate-tools/forkoff/utils/formatting"
	"github.com/substrate-tools/forkoff/utils/logging"
	"github.com/substrate-tools/forkoff/utils/rpc"
)

const version = "forkoff/0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "forkoff: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig(os.Args[1:])
	if err != nil {
		return err
	}
	if cfg.DisplayVersionAndExit {
		fmt.Println(version)
		return nil
	}

	log, err := logging.Default(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	provider := chainspec.NewExecProvider(cfg.Binary, log)

	// The crawler dominates total latency, so the baseline spec is
	// generated while the crawl runs. A failure on either side cancels
	// the other; nothing is written unless both finish.
	var (
		snap     *crawler.Snapshot
		baseline *chainspec.ChainSpec
		original *chainspec.ChainSpec
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		snap, err = obtainSnapshot(egCtx, cfg, log, registry)
		return err
	})
	eg.Go(func() error {
		var err error
		baseline, err = provider.BaselineSpec(egCtx, cfg.BaseChain)
		if err != nil {
			return err
		}
		if cfg.OriginalChain != "" && cfg.OriginalChain != cfg.BaseChain {
			original, err = provider.BaselineSpec(egCtx, cfg.OriginalChain)
			return err
		}
		original = baseline
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	// Pallet filtering runs on the raw snapshot; the runtime code below
	// still comes from the unfiltered crawl.
	pairs, err := fork.KeepPrefixes(snap.Pairs, cfg.Prefixes)
	if err != nil {
		return err
	}

	merged := fork.Merge(baseline, pairs)
	applyIdentity(merged, original, cfg)

	code, err := runtimeCode(cfg, snap)
	if err != nil {
		return err
	}
	rules := fork.DefaultRules(code, cfg.SudoKey)
	if cfg.RulesFile != "" {
		userRules, err := fork.LoadRules(cfg.RulesFile)
		if err != nil {
			return err
		}
		// Operator rules run after the built-in ones so they win on
		// conflicting targets.
		rules = append(rules, userRules...)
	}
	if err := fork.Apply(merged, rules); err != nil {
		return err
	}

	if err := chainspec.Write(merged, cfg.Out); err != nil {
		return err
	}
	log.Info("wrote fork chain spec",
		zap.String("path", cfg.Out),
		zap.String("name", merged.Name),
		zap.String("id", merged.ID),
		zap.String("crawledAt", snap.At),
		zap.Int("genesisEntries", len(merged.Genesis.Raw.Top)),
	)
	return nil
}

// obtainSnapshot returns the live chain's storage, from the snapshot
// cache when one is present or by crawling the node otherwise.
func obtainSnapshot(
	ctx context.Context,
	cfg config.Config,
	log *zap.Logger,
	registry prometheus.Registerer,
) (*crawler.Snapshot, error) {
	if cfg.SnapshotFile != "" {
		snap, err := crawler.LoadSnapshot(cfg.SnapshotFile)
		switch {
		case err == nil:
			log.Info("using cached snapshot",
				zap.String("path", cfg.SnapshotFile),
				zap.String("at", snap.At),
				zap.Int("keys", len(snap.Pairs)),
			)
			return snap, nil
		case errors.Is(err, os.ErrNotExist):
			// Not cached yet; crawl and save below.
		default:
			return nil, err
		}
	}

	requester, err := rpc.NewEndpointRequester(cfg.RPCURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = requester.Close()
	}()

	c, err := crawler.New(
		crawler.NewSubstrateClient(requester),
		crawler.Config{
			At:                cfg.At,
			PageSize:          cfg.PageSize,
			ValueBatch:        cfg.ValueBatch,
			Concurrency:       cfg.Concurrency,
			MaxAttempts:       cfg.MaxAttempts,
			RetryInitialDelay: cfg.RetryInitialDelay,
			RetryMaxDelay:     cfg.RetryMaxDelay,
		},
		log,
		registry,
	)
	if err != nil {
		return nil, err
	}

	snap, err := c.Crawl(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotFile != "" {
		if err := snap.Save(cfg.SnapshotFile); err != nil {
			return nil, err
		}
		log.Info("saved snapshot cache", zap.String("path", cfg.SnapshotFile))
	}
	return snap, nil
}

// applyIdentity sets the fork's network identity. Everything defaults to
// the original chain's metadata with a "-fork" suffix; boot nodes are
// always cleared so the fork never joins the original network's
// discovery.
func applyIdentity(spec, original *chainspec.ChainSpec, cfg config.Config) {
	spec.Name = cfg.Name
	if spec.Name == "" {
		spec.Name = original.Name + "-fork"
	}
	spec.ID = cfg.ID
	if spec.ID == "" {
		spec.ID = original.ID + "-fork"
	}
	spec.ProtocolID = original.ProtocolID
	spec.BootNodes = []string{}
}

// runtimeCode resolves the hex runtime blob the fork starts with: an
// explicit wasm file when given, the crawled :code entry otherwise.
func runtimeCode(cfg config.Config, snap *crawler.Snapshot) (string, error) {
	if cfg.RuntimeWasm != "" {
		wasm, err := os.ReadFile(cfg.RuntimeWasm)
		if err != nil {
			return "", fmt.Errorf("failed to read runtime wasm: %w", err)
		}
		return formatting.Encode(wasm), nil
	}
	code, ok := snap.Pairs[fork.CodeKey]
	if !ok {
		return "", fmt.Errorf("crawled storage has no %s entry; pass a runtime wasm instead", fork.CodeKey)
	}
	return code, nil
}
