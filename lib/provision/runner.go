// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fiat-mx/provision/lib/checkpoint"
	"github.com/fiat-mx/provision/lib/sysuser"
)

// defaultStepTimeout bounds steps that don't declare their own. A full
// apt upgrade on a stale image can legitimately take a long time.
const defaultStepTimeout = 30 * time.Minute

// Runner executes a Plan.
type Runner struct {
	// Logger receives structured step records. Required.
	Logger *slog.Logger

	// Store persists completion checkpoints. Nil disables
	// checkpointing entirely (tests, --no-resume with fresh state).
	Store *checkpoint.Store

	// Resume honors checkpoints from earlier runs of the same plan.
	Resume bool

	// From names a step to re-execute from, overriding checkpoints
	// for it and everything after it.
	From string

	// DryRun prints what would execute without running anything or
	// touching checkpoints.
	DryRun bool

	// Out receives human-readable progress lines. Defaults to stdout.
	Out io.Writer

	// LookupAccount resolves a step's User field. Defaults to sysuser
	// lookup; tests inject their own.
	LookupAccount func(name string) (*sysuser.Account, error)
}

// stepResult captures the outcome of one step.
type stepResult struct {
	status   Status
	duration time.Duration
	err      error
}

// Run executes the plan. The first failed step aborts the run with an
// error naming the step; tolerated and skipped outcomes continue.
func (r *Runner) Run(ctx context.Context, plan *Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if r.From != "" && !planHasStep(plan, r.From) {
		return fmt.Errorf("--from step %q is not in plan %q (steps: %v)", r.From, plan.Name, plan.StepNames())
	}

	var state *checkpoint.State
	if r.Store != nil {
		state = r.Store.Load(plan.Fingerprint())
		if !r.Resume && len(state.Completed) > 0 {
			state = &checkpoint.State{Fingerprint: state.Fingerprint}
			if err := r.Store.Clear(); err != nil {
				return err
			}
		}
	}

	startTime := time.Now()
	total := len(plan.Steps)
	beforeFrom := true
	// When --from is set, checkpoints are honored up to (not
	// including) the named step; the named step and everything after
	// always execute.
	honorCheckpoint := func(name string) bool {
		if r.From == name {
			beforeFrom = false
		}
		if r.From != "" {
			return beforeFrom
		}
		return r.Resume
	}

	r.Logger.Info("provisioning started", "plan", plan.Name, "steps", total, "dry_run", r.DryRun)

	for i := range plan.Steps {
		step := &plan.Steps[i]

		if state != nil && honorCheckpoint(step.Name) && state.IsCompleted(step.Name) {
			r.progress(i, total, step.Name, "skipped (completed in earlier run)")
			continue
		}

		if r.DryRun {
			r.progress(i, total, step.Name, "would run")
			continue
		}

		result := r.executeStep(ctx, step)

		switch result.status {
		case StatusFailed:
			r.progress(i, total, step.Name, fmt.Sprintf("failed (%s)", formatDuration(result.duration)))
			r.Logger.Error("step failed",
				"plan", plan.Name, "step", step.Name, "duration", result.duration, "error", result.err)
			return fmt.Errorf("step %q: %w", step.Name, result.err)
		case StatusSatisfied:
			r.progress(i, total, step.Name, fmt.Sprintf("already satisfied (%s)", formatDuration(result.duration)))
		case StatusSkipped:
			r.progress(i, total, step.Name, "skipped (guard condition not met)")
		default:
			r.progress(i, total, step.Name, fmt.Sprintf("ok (%s)", formatDuration(result.duration)))
		}
		r.Logger.Info("step finished",
			"plan", plan.Name, "step", step.Name, "status", string(result.status), "duration", result.duration)

		// Guard-skipped steps are not checkpointed: the guard is the
		// cheap authority on whether the work is needed, and it should
		// be consulted again on the next run.
		if state != nil && result.status != StatusSkipped {
			if err := r.Store.MarkCompleted(state, step.Name); err != nil {
				return fmt.Errorf("recording checkpoint for %q: %w", step.Name, err)
			}
		}
	}

	r.Logger.Info("provisioning complete", "plan", plan.Name, "duration", time.Since(startTime))
	if !r.DryRun {
		fmt.Fprintf(r.out(), "[provision] %s: complete (%s)\n", plan.Name, formatDuration(time.Since(startTime)))
	}
	return nil
}

// executeStep runs one step: guard, action, check.
func (r *Runner) executeStep(ctx context.Context, step *Step) stepResult {
	startTime := time.Now()

	timeout, err := step.timeoutOrDefault(defaultStepTimeout)
	if err != nil {
		return stepResult{status: StatusFailed, duration: time.Since(startTime), err: err}
	}
	grace, err := step.gracePeriod()
	if err != nil {
		return stepResult{status: StatusFailed, duration: time.Since(startTime), err: err}
	}

	stepContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if step.Do != nil {
		status, err := step.Do(stepContext)
		if err != nil {
			return stepResult{status: StatusFailed, duration: time.Since(startTime), err: err}
		}
		return stepResult{status: status, duration: time.Since(startTime)}
	}

	options := shellOptions{}
	if step.User != "" {
		account, err := r.lookupAccount(step.User)
		if err != nil {
			return stepResult{status: StatusFailed, duration: time.Since(startTime), err: err}
		}
		options.credential = account.Credential()
		options.env = account.Environ()
	}

	// Guards are quick verification commands; no grace on timeout.
	if step.When != "" {
		exitCode, err := runShellCommand(stepContext, step.When, options)
		if err != nil {
			return stepResult{status: StatusFailed, duration: time.Since(startTime), err: fmt.Errorf("when guard: %w", err)}
		}
		if exitCode != 0 {
			return stepResult{status: StatusSkipped, duration: time.Since(startTime)}
		}
	}

	runOptions := options
	runOptions.gracePeriod = grace
	var output bytes.Buffer
	if len(step.ToleratePatterns) > 0 {
		runOptions.capture = &output
	}

	exitCode, err := runShellCommand(stepContext, step.Run, runOptions)
	if err != nil {
		return stepResult{status: StatusFailed, duration: time.Since(startTime), err: fmt.Errorf("run: %w", err)}
	}
	if exitCode != 0 {
		if step.tolerates(exitCode, output.String()) {
			return stepResult{status: StatusSatisfied, duration: time.Since(startTime)}
		}
		return stepResult{status: StatusFailed, duration: time.Since(startTime), err: fmt.Errorf("run: exit code %d", exitCode)}
	}

	if step.Check != "" {
		checkExitCode, err := runShellCommand(stepContext, step.Check, options)
		if err != nil {
			return stepResult{status: StatusFailed, duration: time.Since(startTime), err: fmt.Errorf("check: %w", err)}
		}
		if checkExitCode != 0 {
			return stepResult{status: StatusFailed, duration: time.Since(startTime), err: fmt.Errorf("check: exit code %d", checkExitCode)}
		}
	}

	return stepResult{status: StatusOK, duration: time.Since(startTime)}
}

func (r *Runner) lookupAccount(name string) (*sysuser.Account, error) {
	if r.LookupAccount != nil {
		return r.LookupAccount(name)
	}
	return sysuser.Lookup(name)
}

func (r *Runner) progress(index, total int, name, status string) {
	fmt.Fprintf(r.out(), "[provision] step %d/%d: %s... %s\n", index+1, total, name, status)
}

func (r *Runner) out() io.Writer {
	if r.Out != nil {
		return r.Out
	}
	return os.Stdout
}

func planHasStep(plan *Plan, name string) bool {
	for _, step := range plan.Steps {
		if step.Name == name {
			return true
		}
	}
	return false
}

// formatDuration formats a duration for progress output: seconds with
// one decimal place.
func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.1fs", duration.Seconds())
}
