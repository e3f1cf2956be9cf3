// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func testTree(ran *string) *Command {
	return &Command{
		Name:    "fiat-provision",
		Summary: "Provision a server for the fiat pipeline",
		Subcommands: []*Command{
			{
				Name:    "run",
				Summary: "Execute the provisioning plan",
				Run: func(args []string) error {
					*ran = "run"
					return nil
				},
			},
			{
				Name:    "preflight",
				Summary: "Check the environment",
				Run: func(args []string) error {
					*ran = "preflight"
					return nil
				},
			},
		},
	}
}

func TestExecuteDispatchesSubcommand(t *testing.T) {
	var ran string
	if err := testTree(&ran).Execute([]string{"run"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran != "run" {
		t.Errorf("ran = %q", ran)
	}
}

func TestExecuteUnknownCommandSuggests(t *testing.T) {
	var ran string
	err := testTree(&ran).Execute([]string{"rnu"})
	if err == nil {
		t.Fatal("Execute(rnu) = nil error")
	}
	if !strings.Contains(err.Error(), `did you mean "run"`) {
		t.Errorf("error %q lacks suggestion", err)
	}
}

func TestExecuteNoArgsRequiresSubcommand(t *testing.T) {
	var ran string
	if err := testTree(&ran).Execute(nil); err == nil {
		t.Error("Execute() = nil error, want subcommand required")
	}
}

func TestExecuteFlagParsing(t *testing.T) {
	var got string
	command := &Command{
		Name: "rotate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
			flagSet.StringVar(&got, "config", "", "config path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"--config", "/etc/fiat.yaml"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != "/etc/fiat.yaml" {
		t.Errorf("config = %q", got)
	}
}

func TestExecuteUnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "rotate",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rotate", pflag.ContinueOnError)
			flagSet.String("config", "", "config path")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--confg", "x"})
	if err == nil {
		t.Fatal("Execute with unknown flag = nil error")
	}
	if !strings.Contains(err.Error(), "--config") {
		t.Errorf("error %q lacks flag suggestion", err)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"run", "run", 0},
		{"run", "rnu", 2},
		{"plan", "plna", 2},
		{"preflight", "", 9},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
