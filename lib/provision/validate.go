// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"fmt"
	"regexp"
	"time"
)

// stepNamePattern keeps names usable in checkpoints, --from flags, and
// progress output without quoting.
var stepNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks plan structure before anything executes: step names
// are well-formed and unique, every step has exactly one
// implementation, durations parse, and shell-only options are not set
// on Go actions.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan has no name")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan %q has no steps", p.Name)
	}

	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		position := fmt.Sprintf("step %d", i+1)
		if step.Name != "" {
			position = fmt.Sprintf("step %q", step.Name)
		}

		if !stepNamePattern.MatchString(step.Name) {
			return fmt.Errorf("%s: name must be lowercase alphanumerics and hyphens, got %q", position, step.Name)
		}
		if seen[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		seen[step.Name] = true

		hasRun := step.Run != ""
		hasDo := step.Do != nil
		if hasRun == hasDo {
			return fmt.Errorf("%s: exactly one of run and a Go action is required", position)
		}
		if hasDo && (step.When != "" || step.Check != "" || step.User != "" ||
			len(step.TolerateExitCodes) > 0 || len(step.ToleratePatterns) > 0) {
			return fmt.Errorf("%s: when/check/user/tolerate apply to shell steps only", position)
		}

		if step.Timeout != "" {
			if _, err := time.ParseDuration(step.Timeout); err != nil {
				return fmt.Errorf("%s: %w", position, fmt.Errorf("invalid timeout %q: %w", step.Timeout, err))
			}
		}
		if step.GracePeriod != "" {
			if _, err := time.ParseDuration(step.GracePeriod); err != nil {
				return fmt.Errorf("%s: %w", position, fmt.Errorf("invalid grace_period %q: %w", step.GracePeriod, err))
			}
		}
	}

	return nil
}
