// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package logrotate rotates the pipeline's append-only cron log files.
// The scheduled jobs redirect with ">>" and reopen the file on every
// run, so copy-compress-truncate is safe between runs. Rotated
// generations are gzip-compressed: the logs are line-oriented text and
// compress an order of magnitude.
package logrotate

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Rotate rotates path once it has reached maxBytes: older generations
// shift up (path.1.gz → path.2.gz, …), the current content is
// compressed into path.1.gz, and path is truncated in place so the
// next cron run appends to an empty file with unchanged ownership.
// Generations beyond keep are deleted.
//
// Returns rotated=false when the file is missing or still under the
// threshold.
func Rotate(path string, maxBytes int64, keep int) (rotated bool, err error) {
	if keep < 1 {
		return false, fmt.Errorf("logrotate: keep must be at least 1, got %d", keep)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("logrotate: stat %s: %w", path, err)
	}
	if info.Size() < maxBytes {
		return false, nil
	}

	// Shift older generations, dropping the oldest.
	if err := os.Remove(generation(path, keep)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("logrotate: dropping oldest generation: %w", err)
	}
	for i := keep - 1; i >= 1; i-- {
		from, to := generation(path, i), generation(path, i+1)
		if err := os.Rename(from, to); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("logrotate: shifting %s: %w", from, err)
		}
	}

	if err := compressTo(path, generation(path, 1)); err != nil {
		return false, err
	}

	if err := os.Truncate(path, 0); err != nil {
		return false, fmt.Errorf("logrotate: truncating %s: %w", path, err)
	}
	return true, nil
}

func generation(path string, n int) string {
	return fmt.Sprintf("%s.%d.gz", path, n)
}

func compressTo(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("logrotate: opening %s: %w", source, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("logrotate: creating %s: %w", target, err)
	}

	writer := gzip.NewWriter(out)
	if _, err := io.Copy(writer, in); err != nil {
		out.Close()
		return fmt.Errorf("logrotate: compressing %s: %w", source, err)
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return fmt.Errorf("logrotate: finishing %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("logrotate: closing %s: %w", target, err)
	}
	return nil
}
