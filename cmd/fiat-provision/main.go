// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Command fiat-provision bootstraps a Debian/Ubuntu server to run the
// fiat legislative-monitoring pipeline: system packages, a dedicated
// service account, the repository checkout with its Python virtual
// environment, the nginx reverse-proxy site, and the scheduled cron
// jobs. Runs are checkpointed and resumable; every step is idempotent,
// so re-running after a failure continues where the last run stopped.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
)

func main() {
	root := &cli.Command{
		Name:    "fiat-provision",
		Summary: "Provision a server for the fiat pipeline",
		Description: `fiat-provision bootstraps a fresh Debian/Ubuntu server to run the fiat
legislative-monitoring pipeline end to end: packages, service account,
repository checkout, Python environment, nginx site, and cron jobs.

Runs are checkpointed: a re-run skips steps that already completed, and
every step tolerates finding its work already done.`,
		Subcommands: []*cli.Command{
			newRunCommand(),
			newPreflightCommand(),
			newPlanCommand(),
			newLogsCommand(),
			newVersionCommand(),
		},
	}

	if err := root.Execute(os.Args[1:]); err != nil {
		// ExitError means the command already reported its outcome and
		// only needs the exit status.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		// Categorized errors carry their own exit code.
		var toolErr *cli.ToolError
		if errors.As(err, &toolErr) {
			os.Exit(toolErr.ExitCode())
		}
		os.Exit(1)
	}
}
