// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
	"github.com/fiat-mx/provision/lib/logrotate"
)

func newLogsCommand() *cli.Command {
	return &cli.Command{
		Name:    "logs",
		Summary: "Manage the pipeline's log files",
		Subcommands: []*cli.Command{
			newLogsRotateCommand(),
		},
	}
}

func newLogsRotateCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "rotate",
		Summary: "Rotate the cron log files once they exceed the size threshold",
		Description: `Rotate the pipeline's cron log files: once a file exceeds the
configured size, its content is compressed into a numbered .gz
generation and the file is truncated in place, so the next scheduled
run keeps appending to the same path. Intended to be run from cron
itself (the pipeline's jobs append forever otherwise).`,
		Usage: "fiat-provision logs rotate [flags]",
		Examples: []cli.Example{
			{
				Description: "Rotate from a daily cron entry",
				Command:     "fiat-provision logs rotate --config /etc/fiat-provision.yaml",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("rotate takes no positional arguments, got %v", args)
			}

			cfg, err := readConfig(configPath)
			if err != nil {
				return err
			}

			for _, path := range []string{cfg.CronLog(), cfg.CronFullLog()} {
				rotated, err := logrotate.Rotate(path, cfg.LogRotation.MaxBytes, cfg.LogRotation.Keep)
				if err != nil {
					return err
				}
				if rotated {
					fmt.Printf("rotated %s\n", path)
				} else {
					fmt.Printf("%s: below threshold, not rotated\n", path)
				}
			}
			return nil
		},
	}
}
