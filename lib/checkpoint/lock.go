// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// lockFile is the run-lock file name inside the state directory.
const lockFile = "run.lock"

// Lock is an exclusive advisory lock held for the duration of a
// provisioning run. Only one run may mutate system state at a time;
// the lock makes that assumption explicit instead of hoping.
type Lock struct {
	file *os.File
}

// AcquireLock takes the run lock under dir without blocking. Returns
// an error identifying the conflict when another run holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, lockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening run lock %s: %w", path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("another provisioning run holds %s; wait for it to finish", path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return &Lock{file: file}, nil
}

// Release drops the lock. The file stays in place; flock state dies
// with the descriptor.
func (l *Lock) Release() error {
	return l.file.Close()
}
