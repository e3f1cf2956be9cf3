// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package provision executes a provisioning plan: an ordered list of
// steps run strictly sequentially and fail-fast. A step is either a
// shell command or a Go action; each may carry a guard command whose
// non-zero exit skips the step, a post-success check command, and a
// timeout with optional SIGTERM grace before SIGKILL.
//
// Step outcomes:
//
//   - ok: the step did its work
//   - satisfied: the system was already in the desired state (account
//     exists, checkout present): the one failure mode the procedure
//     explicitly whitelists
//   - skipped: the guard condition was not met, or the checkpoint
//     recorded the step as completed in an earlier run
//   - failed: anything else; the first failure aborts the whole run
//     with that step's error, and nothing later executes
//
// There is no rollback. Effects applied before a failure stay in
// place; the checkpoint records them so the next run resumes after
// them instead of redoing the work.
package provision
