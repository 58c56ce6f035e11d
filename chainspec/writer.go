// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package chainspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrWriteFailed marks a failure to produce the output artifact.
var ErrWriteFailed = errors.New("failed to write chain spec")

// Write serializes [spec] and atomically writes it to [path]. The
// document lands in a temporary file in the target directory first and
// is renamed into place, so a failed run never leaves a truncated or
// inconsistent artifact behind.
func Write(spec *ChainSpec, path string) error {
	b, err := spec.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".forkoff-spec-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, path, err)
	}
	return nil
}
