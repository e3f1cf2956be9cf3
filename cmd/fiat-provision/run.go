// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
	"github.com/fiat-mx/provision/lib/checkpoint"
	"github.com/fiat-mx/provision/lib/config"
	"github.com/fiat-mx/provision/lib/provision"
)

func newRunCommand() *cli.Command {
	var (
		configPath    string
		planPath      string
		from          string
		noResume      bool
		dryRun        bool
		skipPreflight bool
	)

	return &cli.Command{
		Name:    "run",
		Summary: "Execute the provisioning plan",
		Description: `Execute the provisioning plan: update packages, create the service
account, clone the pipeline repository, build its Python environment,
install the nginx site and cron jobs, and run the pipeline once.

Completed steps are checkpointed; a re-run resumes after the last step
that finished. Changing the configuration invalidates the checkpoint.`,
		Usage: "fiat-provision run [flags]",
		Examples: []cli.Example{
			{
				Description: "Provision with a config file",
				Command:     "fiat-provision run --config /etc/fiat-provision.yaml",
			},
			{
				Description: "Re-run everything from the nginx step onward",
				Command:     "fiat-provision run --config /etc/fiat-provision.yaml --from install-nginx-site",
			},
			{
				Description: "Show what would execute without touching the system",
				Command:     "fiat-provision run --config /etc/fiat-provision.yaml --dry-run",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration file")
			flagSet.StringVar(&planPath, "plan", "", "path to a JSONC plan file replacing the built-in plan")
			flagSet.StringVar(&from, "from", "", "re-execute starting at the named step, ignoring its checkpoint")
			flagSet.BoolVar(&noResume, "no-resume", false, "ignore checkpoints from earlier runs and start over")
			flagSet.BoolVar(&dryRun, "dry-run", false, "print the steps that would execute without running them")
			flagSet.BoolVar(&skipPreflight, "skip-preflight", false, "skip the environment checks before running")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("run takes no positional arguments, got %v", args)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			plan := buildPlan(cfg)
			if planPath != "" {
				plan, err = provision.ReadFile(planPath)
				if err != nil {
					return cli.Validation("loading plan %s: %v", planPath, err)
				}
			}

			if !skipPreflight && !dryRun {
				if failed := reportPreflight(os.Stdout, preflightChecks(cfg)); failed {
					fmt.Fprintln(os.Stderr, "preflight checks failed; fix the issues above or pass --skip-preflight")
					return &cli.ExitError{Code: 1}
				}
			}

			logger := cli.NewCommandLogger().With("command", "run")
			runner := &provision.Runner{
				Logger: logger,
				Resume: !noResume,
				From:   from,
				DryRun: dryRun,
			}

			// A dry run stays read-only: no state directory, no lock,
			// no checkpoint store.
			if !dryRun {
				if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
					return cli.Internal("creating state directory %s: %v", cfg.Paths.StateDir, err)
				}
				lock, err := checkpoint.AcquireLock(cfg.Paths.StateDir)
				if err != nil {
					return cli.Conflict("%v", err)
				}
				defer lock.Release()
				runner.Store = checkpoint.NewStore(cfg.Paths.StateDir)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runner.Run(ctx, plan)
		},
	}
}

// readConfig loads the configuration file over the defaults without
// validating, so inspection commands work with placeholder values.
func readConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, cli.NotFound("%v", err)
		}
		return nil, err
	}
	return cfg, nil
}

// loadConfig loads and validates the configuration, defaulting when no
// file is given.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Validation("invalid configuration: %v", err)
	}
	return cfg, nil
}
