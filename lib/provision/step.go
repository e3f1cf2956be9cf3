// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fiat-mx/provision/lib/checkpoint"
)

// Status is the outcome of executing a single step.
type Status string

const (
	StatusOK        Status = "ok"
	StatusSatisfied Status = "satisfied"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Action is a Go-native step implementation. It returns StatusOK when
// it changed the system, StatusSatisfied when the desired state was
// already in place, or an error.
type Action func(ctx context.Context) (Status, error)

// Step is one unit of the provisioning procedure.
type Step struct {
	// Name identifies the step in progress output, checkpoints, and
	// --from. Lowercase with hyphens.
	Name string `json:"name"`

	// Summary is a one-line description shown by `fiat-provision plan`.
	Summary string `json:"summary,omitempty"`

	// Run is a shell command executed via sh -c. Exactly one of Run
	// and Do must be set.
	Run string `json:"run,omitempty"`

	// When is an optional guard command. A non-zero exit skips the
	// step without failing the run. Shell steps only.
	When string `json:"when,omitempty"`

	// Check is an optional verification command run after a
	// successful Run. A non-zero exit fails the step. Shell steps only.
	Check string `json:"check,omitempty"`

	// User names the account a shell step runs as. Empty means the
	// provisioner's own identity (root).
	User string `json:"user,omitempty"`

	// Timeout bounds the step (Go duration string). Empty uses the
	// runner's default.
	Timeout string `json:"timeout,omitempty"`

	// GracePeriod, when set, sends SIGTERM on timeout and escalates
	// to SIGKILL after this duration. Empty kills immediately. Use it
	// for steps that must not be interrupted mid-transaction (dpkg).
	GracePeriod string `json:"grace_period,omitempty"`

	// TolerateExitCodes lists non-zero exit codes treated as "already
	// satisfied" instead of failed: useradd's 9 for an existing
	// account. A tolerated exit skips the Check command; the step did
	// no new work to verify. Shell steps only.
	TolerateExitCodes []int `json:"tolerate_exit_codes,omitempty"`

	// ToleratePatterns lists substrings matched against the combined
	// output of a failed Run; a match marks the step satisfied. For
	// refusals whose exit code is shared with real failures, like git
	// clone's "destination path already exists". Shell steps only.
	ToleratePatterns []string `json:"tolerate_patterns,omitempty"`

	// Detail is extra material folded into the plan fingerprint for
	// Go-action steps, so configuration changes (repo URL, schedules)
	// invalidate checkpoints even though the closure itself cannot be
	// fingerprinted.
	Detail string `json:"detail,omitempty"`

	// Do is the Go action. Exactly one of Run and Do must be set.
	Do Action `json:"-"`
}

// timeoutOrDefault parses the step timeout, falling back to
// defaultTimeout. Validate has already rejected malformed values on
// parsed plans; built-in plans are trusted.
func (s *Step) timeoutOrDefault(defaultTimeout time.Duration) (time.Duration, error) {
	if s.Timeout == "" {
		return defaultTimeout, nil
	}
	parsed, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
	}
	return parsed, nil
}

// tolerates reports whether a non-zero exit is one of the step's
// whitelisted "already done" outcomes, by exit code or by a pattern
// appearing in the command's output.
func (s *Step) tolerates(exitCode int, output string) bool {
	if slices.Contains(s.TolerateExitCodes, exitCode) {
		return true
	}
	for _, pattern := range s.ToleratePatterns {
		if strings.Contains(output, pattern) {
			return true
		}
	}
	return false
}

func (s *Step) gracePeriod() (time.Duration, error) {
	if s.GracePeriod == "" {
		return 0, nil
	}
	parsed, err := time.ParseDuration(s.GracePeriod)
	if err != nil {
		return 0, fmt.Errorf("invalid grace_period %q: %w", s.GracePeriod, err)
	}
	return parsed, nil
}

// Plan is an ordered provisioning procedure.
type Plan struct {
	// Name identifies the plan in logs and progress output.
	Name string `json:"name"`

	// Steps execute in order, fail-fast.
	Steps []Step `json:"steps"`
}

// Fingerprint returns a stable identifier for the plan's semantics:
// the canonical JSON of every step's declarative fields. Two plans
// with the same fingerprint perform the same work, so checkpoints
// transfer between them.
func (p *Plan) Fingerprint() string {
	// Step's json tags cover exactly the declarative fields; Do is
	// excluded and represented by Detail.
	encoded, err := json.Marshal(p)
	if err != nil {
		// Plans are structs of strings; Marshal cannot fail.
		panic(fmt.Sprintf("provision: encoding plan: %v", err))
	}
	return checkpoint.Fingerprint(encoded)
}

// StepNames returns the step names in order.
func (p *Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Name
	}
	return names
}
