// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to [w] at [level].
// Components receive the logger through their constructors; there is no
// package-global logger.
func New(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core), nil
}

// Default returns a logger writing to stderr, the output stream used for
// all diagnostics so that stdout stays reserved for document output.
func Default(level string) (*zap.Logger, error) {
	return New(level, os.Stderr)
}

// NoLog returns a logger that discards everything. Used by tests.
func NoLog() *zap.Logger {
	return zap.NewNop()
}
