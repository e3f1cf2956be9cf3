// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
	"github.com/fiat-mx/provision/lib/version"
)

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version and build information",
		Run: func(args []string) error {
			fmt.Println(version.Info())
			return nil
		},
	}
}
