// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package apt drives the system package manager for the dependency
// install steps. Commands run noninteractively with output inherited,
// so apt's progress is visible in the provisioning log.
package apt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Update refreshes the package index.
func Update(ctx context.Context) error {
	return run(ctx, "update")
}

// Upgrade upgrades all installed packages.
func Upgrade(ctx context.Context) error {
	return run(ctx, "upgrade", "-y")
}

// Install installs the named packages. Already-installed packages are
// a no-op for apt, so the step is naturally idempotent.
func Install(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return fmt.Errorf("apt: no packages to install")
	}
	return run(ctx, append([]string{"install", "-y"}, packages...)...)
}

func run(ctx context.Context, args ...string) error {
	command := exec.CommandContext(ctx, "apt-get", args...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	command.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")

	if err := command.Run(); err != nil {
		return fmt.Errorf("apt-get %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
