// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
	"github.com/fiat-mx/provision/lib/config"
	"github.com/fiat-mx/provision/lib/cron"
	"github.com/fiat-mx/provision/lib/provision"
)

func newPlanCommand() *cli.Command {
	var (
		configPath string
		planPath   string
	)

	return &cli.Command{
		Name:    "plan",
		Summary: "Print the resolved step list without executing",
		Description: `Print the steps a run would execute, in order, plus the cron schedules
the install-cron step would register. Works with the placeholder
configuration; nothing is validated or executed.`,
		Usage: "fiat-provision plan [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration file")
			flagSet.StringVar(&planPath, "plan", "", "path to a JSONC plan file replacing the built-in plan")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("plan takes no positional arguments, got %v", args)
			}

			cfg, err := readConfig(configPath)
			if err != nil {
				return err
			}

			plan := buildPlan(cfg)
			custom := planPath != ""
			if custom {
				loaded, err := provision.ReadFile(planPath)
				if err != nil {
					return cli.Validation("loading plan %s: %v", planPath, err)
				}
				plan = loaded
			}

			printPlanReport(os.Stdout, cfg, plan, custom)
			return nil
		},
	}
}

// printPlanReport prints the step listing, plus the cron schedules the
// built-in plan would register. A custom plan file replaces the whole
// built-in plan, so the config's schedules say nothing about what it
// installs and are omitted.
func printPlanReport(w io.Writer, cfg *config.Config, plan *provision.Plan, custom bool) {
	printPlan(w, plan)
	if !custom {
		printSchedules(w, cfg)
	}
}

func printPlan(w io.Writer, plan *provision.Plan) {
	fmt.Fprintf(w, "Plan %q: %d steps\n\n", plan.Name, len(plan.Steps))
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	for i, step := range plan.Steps {
		kind := "go"
		if step.Run != "" {
			kind = "shell"
		}
		fmt.Fprintf(tw, "  %d.\t%s\t[%s]\t%s\n", i+1, step.Name, kind, step.Summary)
	}
	tw.Flush()
}

// printSchedules shows when the registered cron jobs would next fire,
// so a schedule typo is visible before anything is installed.
func printSchedules(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "\nCron schedules (as user %s):\n", cfg.ServiceUser)
	now := time.Now().UTC()
	for _, job := range []struct {
		label      string
		expression string
	}{
		{"light (--skip-trends)", cfg.Schedules.Light},
		{"full", cfg.Schedules.Full},
	} {
		schedule, err := cron.Parse(job.expression)
		if err != nil {
			fmt.Fprintf(w, "  %-22s %s (invalid: %v)\n", job.label, job.expression, err)
			continue
		}
		next, err := schedule.Next(now)
		if err != nil {
			fmt.Fprintf(w, "  %-22s %s (never fires: %v)\n", job.label, job.expression, err)
			continue
		}
		fmt.Fprintf(w, "  %-22s %s (next: %s)\n", job.label, job.expression, next.Format(time.RFC3339))
	}
}
