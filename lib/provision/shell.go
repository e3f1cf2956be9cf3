// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// shellOptions configure one shell invocation.
type shellOptions struct {
	// credential, when set, runs the shell as that account.
	credential *syscall.Credential

	// env, when set, replaces the inherited environment. Paired with
	// credential: HOME/USER/LOGNAME must match the account, not root.
	env []string

	// gracePeriod selects SIGTERM-then-SIGKILL on timeout instead of
	// an immediate SIGKILL.
	gracePeriod time.Duration

	// capture, when set, receives a copy of the combined output in
	// addition to the provisioner's own stdout/stderr. Used to match
	// tolerated-failure patterns against what the command printed.
	capture io.Writer
}

// runShellCommand executes a command via sh -c with stdout and stderr
// inherited from the provisioner, so apt/git/pip progress is visible.
// Returns the exit code, or an error for non-exit failures (context
// cancellation, signals, missing shell).
//
// The command runs in its own process group so that a timeout kills
// the shell and everything it spawned. Without Setpgid only the shell
// receives the signal; children survive holding the inherited output
// descriptors.
//
// With a zero gracePeriod, SIGKILL is sent immediately on timeout.
// With a positive gracePeriod, SIGTERM goes first and SIGKILL follows
// after the grace elapses; package-manager steps use this so dpkg can
// finish its transaction instead of leaving the database locked.
func runShellCommand(ctx context.Context, command string, opts shellOptions) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if opts.capture != nil {
		cmd.Stdout = io.MultiWriter(os.Stdout, opts.capture)
		cmd.Stderr = io.MultiWriter(os.Stderr, opts.capture)
	}
	if opts.env != nil {
		cmd.Env = opts.env
	}

	attributes := &syscall.SysProcAttr{Setpgid: true}
	if opts.credential != nil {
		attributes.Credential = opts.credential
	}
	cmd.SysProcAttr = attributes

	if opts.gracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				// Process group already gone or unkillable; escalate.
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(opts.gracePeriod)
				// ESRCH from an exited process group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode(), nil
	}
	return -1, err
}
