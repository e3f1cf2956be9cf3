// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/fiat-mx/provision/cmd/fiat-provision/cli"
	"github.com/fiat-mx/provision/lib/config"
)

// checkResult is the outcome of a single preflight check.
type checkResult struct {
	Name    string
	Passed  bool
	Message string
}

func newPreflightCommand() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "preflight",
		Summary: "Check the environment before provisioning",
		Description: `Run every environment check and report all results: root privileges,
required tools in PATH, state directory writability, and configuration
validity. Exits 1 if any check fails.`,
		Usage: "fiat-provision preflight [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("preflight", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Validation("preflight takes no positional arguments, got %v", args)
			}

			cfg, err := readConfig(configPath)
			if err != nil {
				return err
			}

			if failed := reportPreflight(os.Stdout, preflightChecks(cfg)); failed {
				return &cli.ExitError{Code: 1}
			}
			fmt.Println("all preflight checks passed")
			return nil
		},
	}
}

// preflightChecks runs every check and returns all results; nothing
// short-circuits, so the operator sees the full picture in one pass.
func preflightChecks(cfg *config.Config) []checkResult {
	var results []checkResult

	results = append(results, checkRoot())

	// Tools the plan needs before its own package install runs.
	for _, tool := range []string{"apt-get", "useradd", "systemctl", "sh"} {
		results = append(results, checkTool(tool))
	}

	// git and nginx are used by later steps but installed by the
	// install-packages step itself, so absence is fine as long as the
	// package list covers them.
	for _, tool := range []string{"git", "nginx"} {
		results = append(results, checkToolOrScheduled(tool, cfg.Packages))
	}

	results = append(results, checkStateDir(cfg.Paths.StateDir))
	results = append(results, checkConfig(cfg))

	return results
}

func checkRoot() checkResult {
	if os.Geteuid() != 0 {
		return checkResult{
			Name:    "root privileges",
			Message: fmt.Sprintf("running as uid %d; provisioning needs root (installs packages, writes /etc)", os.Geteuid()),
		}
	}
	return checkResult{Name: "root privileges", Passed: true, Message: "running as root"}
}

func checkTool(name string) checkResult {
	path, err := exec.LookPath(name)
	if err != nil {
		return checkResult{
			Name:    name,
			Message: "not found in PATH; this does not look like a Debian/Ubuntu system",
		}
	}
	return checkResult{Name: name, Passed: true, Message: path}
}

func checkToolOrScheduled(name string, packages []string) checkResult {
	if path, err := exec.LookPath(name); err == nil {
		return checkResult{Name: name, Passed: true, Message: path}
	}
	if slices.Contains(packages, name) {
		return checkResult{Name: name, Passed: true, Message: "not installed yet; the install-packages step will install it"}
	}
	return checkResult{
		Name:    name,
		Message: "not found in PATH and not in the configured package list",
	}
}

// checkStateDir probes writability without creating anything: a check
// must not mutate the system it inspects. The run command creates the
// directory itself.
func checkStateDir(dir string) checkResult {
	name := "state directory"
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return checkResult{Name: name, Message: fmt.Sprintf("%s exists but is not a directory", dir)}
		}
		if err := unix.Access(dir, unix.W_OK); err != nil {
			return checkResult{Name: name, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
		}
		return checkResult{Name: name, Passed: true, Message: dir + " is writable"}
	case os.IsNotExist(err):
		ancestor := nearestExisting(dir)
		if accessErr := unix.Access(ancestor, unix.W_OK); accessErr != nil {
			return checkResult{Name: name, Message: fmt.Sprintf(
				"%s does not exist and %s is not writable: %v", dir, ancestor, accessErr)}
		}
		return checkResult{Name: name, Passed: true, Message: fmt.Sprintf(
			"%s does not exist yet; a run will create it under %s", dir, ancestor)}
	default:
		return checkResult{Name: name, Message: fmt.Sprintf("stat %s: %v", dir, err)}
	}
}

// nearestExisting walks up from path to the closest directory that
// exists. Terminates at the filesystem root, which always exists.
func nearestExisting(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func checkConfig(cfg *config.Config) checkResult {
	if err := cfg.Validate(); err != nil {
		return checkResult{Name: "configuration", Message: err.Error()}
	}
	return checkResult{Name: "configuration", Passed: true, Message: "valid"}
}

// reportPreflight prints every result and reports whether any failed.
func reportPreflight(w io.Writer, results []checkResult) (failed bool) {
	for _, result := range results {
		status := "ok"
		if !result.Passed {
			status = "FAIL"
			failed = true
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", status, result.Name, result.Message)
	}
	return failed
}
