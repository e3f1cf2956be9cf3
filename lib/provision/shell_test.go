// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunShellCommandExitCodes(t *testing.T) {
	ctx := context.Background()

	exitCode, err := runShellCommand(ctx, "true", shellOptions{})
	if err != nil || exitCode != 0 {
		t.Errorf("true: exit=%d err=%v", exitCode, err)
	}

	exitCode, err = runShellCommand(ctx, "exit 9", shellOptions{})
	if err != nil {
		t.Fatalf("exit 9: %v", err)
	}
	if exitCode != 9 {
		t.Errorf("exit code = %d, want 9", exitCode)
	}
}

func TestRunShellCommandSideEffect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker")
	_, err := runShellCommand(context.Background(), "echo done > "+path, shellOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("marker not written: %v", err)
	}
	if string(data) != "done\n" {
		t.Errorf("marker = %q", data)
	}
}

func TestRunShellCommandTimeoutKillsChildren(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runShellCommand(ctx, "sleep 30", shellOptions{})
	if err == nil {
		t.Fatal("timed-out command returned nil error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("command outlived its timeout by %s", elapsed)
	}
}

func TestRunShellCommandEnvReplacement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home")
	_, err := runShellCommand(context.Background(), "echo $HOME > "+path, shellOptions{
		env: []string{"HOME=/home/fiat", "PATH=/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "/home/fiat\n" {
		t.Errorf("child HOME = %q, want /home/fiat", strings.TrimSpace(string(data)))
	}
}

func TestRunShellCommandCapturesOutput(t *testing.T) {
	var output bytes.Buffer
	exitCode, err := runShellCommand(context.Background(),
		"echo to-stdout; echo to-stderr >&2; exit 3", shellOptions{capture: &output})
	if err != nil {
		t.Fatal(err)
	}
	if exitCode != 3 {
		t.Errorf("exit code = %d, want 3", exitCode)
	}
	for _, want := range []string{"to-stdout", "to-stderr"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("capture %q missing %q", output.String(), want)
		}
	}
}
