// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package chainspec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ErrBaselineUnavailable marks a failure to obtain a parseable baseline
// specification. It is fatal to the run.
var ErrBaselineUnavailable = errors.New("baseline spec unavailable")

// Provider supplies the baseline chain specification the fork is built
// on top of.
type Provider interface {
	// BaselineSpec returns the raw spec for [chain] ("dev" or a chain
	// id / spec path understood by the generator).
	BaselineSpec(ctx context.Context, chain string) (*ChainSpec, error)
}

var _ Provider = (*ExecProvider)(nil)

// ExecProvider obtains baseline specs by invoking a node binary's
// build-spec command and parsing its stdout.
type ExecProvider struct {
	binary string
	log    *zap.Logger
}

func NewExecProvider(binary string, log *zap.Logger) *ExecProvider {
	return &ExecProvider{
		binary: binary,
		log:    log,
	}
}

func (p *ExecProvider) BaselineSpec(ctx context.Context, chain string) (*ChainSpec, error) {
	args := []string{"build-spec", "--raw"}
	if chain == "dev" {
		args = append(args, "--dev")
	} else {
		args = append(args, "--chain", chain)
	}

	p.log.Info("generating baseline spec",
		zap.String("binary", p.binary),
		zap.String("chain", chain),
	)

	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %s (stderr: %s)",
			ErrBaselineUnavailable,
			p.binary,
			args[0],
			err,
			bytes.TrimSpace(stderr.Bytes()),
		)
	}

	spec, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBaselineUnavailable, err)
	}

	p.log.Info("baseline spec ready",
		zap.String("chain", chain),
		zap.String("id", spec.ID),
		zap.Int("genesisEntries", len(spec.Genesis.Raw.Top)),
	)
	return spec, nil
}
