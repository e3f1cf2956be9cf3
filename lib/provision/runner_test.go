// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/fiat-mx/provision/lib/checkpoint"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func action(status Status, err error, ran *[]string, name string) Action {
	return func(ctx context.Context) (Status, error) {
		if ran != nil {
			*ran = append(*ran, name)
		}
		return status, err
	}
}

func TestRunExecutesInOrder(t *testing.T) {
	var ran []string
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "first", Do: action(StatusOK, nil, &ran, "first")},
			{Name: "second", Do: action(StatusSatisfied, nil, &ran, "second")},
			{Name: "third", Do: action(StatusOK, nil, &ran, "third")},
		},
	}

	runner := &Runner{Logger: testLogger(), Out: io.Discard}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.Join(ran, ","); got != "first,second,third" {
		t.Errorf("execution order = %s", got)
	}
}

func TestRunFailFast(t *testing.T) {
	var ran []string
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "install-requirements", Do: action(StatusFailed, fmt.Errorf("pip exploded"), &ran, "install-requirements")},
			{Name: "install-nginx-site", Do: action(StatusOK, nil, &ran, "install-nginx-site")},
			{Name: "install-cron", Do: action(StatusOK, nil, &ran, "install-cron")},
		},
	}

	runner := &Runner{Logger: testLogger(), Out: io.Discard}
	err := runner.Run(context.Background(), plan)
	if err == nil {
		t.Fatal("Run = nil error, want failure")
	}
	if !strings.Contains(err.Error(), `step "install-requirements"`) {
		t.Errorf("error %q does not name the failing step", err)
	}
	if !strings.Contains(err.Error(), "pip exploded") {
		t.Errorf("error %q lost the underlying cause", err)
	}
	// Nothing after the failure ran: no proxy or cron configuration
	// after a failed dependency install.
	if got := strings.Join(ran, ","); got != "install-requirements" {
		t.Errorf("steps ran after failure: %s", got)
	}
}

func TestRunToleratedContinues(t *testing.T) {
	var ran []string
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "create-user", Do: action(StatusSatisfied, nil, &ran, "create-user")},
			{Name: "clone-repo", Do: action(StatusSatisfied, nil, &ran, "clone-repo")},
			{Name: "after", Do: action(StatusOK, nil, &ran, "after")},
		},
	}

	runner := &Runner{Logger: testLogger(), Out: io.Discard}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run with satisfied steps: %v", err)
	}
	if len(ran) != 3 {
		t.Errorf("ran %v, want all three", ran)
	}
}

func TestRunShellGuardSkips(t *testing.T) {
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "guarded", When: "false", Run: "exit 1"},
			{Name: "runs", Run: "true"},
		},
	}

	var output bytes.Buffer
	runner := &Runner{Logger: testLogger(), Out: &output}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(output.String(), "guarded... skipped") {
		t.Errorf("output missing skip line:\n%s", output.String())
	}
}

func TestRunShellToleratedExitCode(t *testing.T) {
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "create-user", Run: "exit 9", TolerateExitCodes: []int{9}},
			{Name: "after", Run: "true"},
		},
	}

	var output bytes.Buffer
	runner := &Runner{Logger: testLogger(), Out: &output}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run with tolerated exit: %v", err)
	}
	if !strings.Contains(output.String(), "create-user... already satisfied") {
		t.Errorf("output missing satisfied line:\n%s", output.String())
	}
	if !strings.Contains(output.String(), "after... ok") {
		t.Errorf("run did not continue past tolerated step:\n%s", output.String())
	}
}

func TestRunShellToleratedPattern(t *testing.T) {
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{
				Name:             "clone-repo",
				Run:              `echo "fatal: destination path 'fiat' already exists" >&2; exit 128`,
				ToleratePatterns: []string{"already exists"},
			},
		},
	}

	var output bytes.Buffer
	runner := &Runner{Logger: testLogger(), Out: &output}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run with tolerated pattern: %v", err)
	}
	if !strings.Contains(output.String(), "clone-repo... already satisfied") {
		t.Errorf("output missing satisfied line:\n%s", output.String())
	}
}

func TestRunShellUnmatchedToleranceFails(t *testing.T) {
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{
				Name:              "strict",
				Run:               "echo unrelated failure >&2; exit 7",
				TolerateExitCodes: []int{9},
				ToleratePatterns:  []string{"already exists"},
			},
		},
	}

	runner := &Runner{Logger: testLogger(), Out: io.Discard}
	err := runner.Run(context.Background(), plan)
	if err == nil {
		t.Fatal("Run = nil, want failure: neither exit code nor pattern matched")
	}
	if !strings.Contains(err.Error(), "exit code 7") {
		t.Errorf("error = %q", err)
	}
}

func TestRunShellCheckFailure(t *testing.T) {
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "checked", Run: "true", Check: "false"},
		},
	}

	runner := &Runner{Logger: testLogger(), Out: io.Discard}
	err := runner.Run(context.Background(), plan)
	if err == nil {
		t.Fatal("Run = nil, want check failure")
	}
	if !strings.Contains(err.Error(), "check: exit code 1") {
		t.Errorf("error = %q", err)
	}
}

func TestRunResumeSkipsCompleted(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	var firstRun []string
	plan := func(ran *[]string, failSecond bool) *Plan {
		secondStatus, secondErr := StatusOK, error(nil)
		if failSecond {
			secondStatus, secondErr = StatusFailed, fmt.Errorf("boom")
		}
		return &Plan{
			Name: "test",
			Steps: []Step{
				{Name: "one", Do: action(StatusOK, nil, ran, "one")},
				{Name: "two", Do: action(secondStatus, secondErr, ran, "two")},
				{Name: "three", Do: action(StatusOK, nil, ran, "three")},
			},
		}
	}

	runner := &Runner{Logger: testLogger(), Store: store, Resume: true, Out: io.Discard}
	if err := runner.Run(context.Background(), plan(&firstRun, true)); err == nil {
		t.Fatal("first Run = nil, want failure at step two")
	}
	if got := strings.Join(firstRun, ","); got != "one,two" {
		t.Errorf("first run executed %s", got)
	}

	// Second run resumes after "one".
	var secondRun []string
	if err := runner.Run(context.Background(), plan(&secondRun, false)); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := strings.Join(secondRun, ","); got != "two,three" {
		t.Errorf("resumed run executed %s, want two,three", got)
	}
}

func TestRunNoResumeClearsCheckpoint(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	var ran []string
	makePlan := func() *Plan {
		return &Plan{
			Name: "test",
			Steps: []Step{
				{Name: "one", Do: action(StatusOK, nil, &ran, "one")},
			},
		}
	}

	resuming := &Runner{Logger: testLogger(), Store: store, Resume: true, Out: io.Discard}
	if err := resuming.Run(context.Background(), makePlan()); err != nil {
		t.Fatal(err)
	}

	fresh := &Runner{Logger: testLogger(), Store: store, Resume: false, Out: io.Discard}
	if err := fresh.Run(context.Background(), makePlan()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(ran, ","); got != "one,one" {
		t.Errorf("executed %s, want step re-run without resume", got)
	}
}

func TestRunFromForcesNamedStep(t *testing.T) {
	store := checkpoint.NewStore(t.TempDir())
	var ran []string
	makePlan := func() *Plan {
		return &Plan{
			Name: "test",
			Steps: []Step{
				{Name: "one", Do: action(StatusOK, nil, &ran, "one")},
				{Name: "two", Do: action(StatusOK, nil, &ran, "two")},
				{Name: "three", Do: action(StatusOK, nil, &ran, "three")},
			},
		}
	}

	complete := &Runner{Logger: testLogger(), Store: store, Resume: true, Out: io.Discard}
	if err := complete.Run(context.Background(), makePlan()); err != nil {
		t.Fatal(err)
	}
	ran = nil

	fromTwo := &Runner{Logger: testLogger(), Store: store, Resume: true, From: "two", Out: io.Discard}
	if err := fromTwo.Run(context.Background(), makePlan()); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(ran, ","); got != "two,three" {
		t.Errorf("--from run executed %s, want two,three", got)
	}
}

func TestRunFromUnknownStep(t *testing.T) {
	plan := &Plan{Name: "test", Steps: []Step{{Name: "one", Run: "true"}}}
	runner := &Runner{Logger: testLogger(), From: "nope", Out: io.Discard}
	if err := runner.Run(context.Background(), plan); err == nil {
		t.Error("Run with unknown --from = nil error")
	}
}

func TestDryRunExecutesNothing(t *testing.T) {
	var ran []string
	plan := &Plan{
		Name: "test",
		Steps: []Step{
			{Name: "one", Do: action(StatusOK, nil, &ran, "one")},
		},
	}

	var output bytes.Buffer
	runner := &Runner{Logger: testLogger(), DryRun: true, Out: &output}
	if err := runner.Run(context.Background(), plan); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 0 {
		t.Errorf("dry run executed %v", ran)
	}
	if !strings.Contains(output.String(), "would run") {
		t.Errorf("dry run output missing 'would run':\n%s", output.String())
	}
}

func TestFingerprintDependsOnDetail(t *testing.T) {
	makePlan := func(detail string) *Plan {
		return &Plan{
			Name: "test",
			Steps: []Step{
				{Name: "one", Detail: detail, Do: action(StatusOK, nil, nil, "one")},
			},
		}
	}

	if makePlan("repo=a").Fingerprint() == makePlan("repo=b").Fingerprint() {
		t.Error("fingerprint ignores step detail")
	}
	if makePlan("repo=a").Fingerprint() != makePlan("repo=a").Fingerprint() {
		t.Error("fingerprint not deterministic")
	}
}
