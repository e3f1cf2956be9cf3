// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skipf("git not available: %v", err)
	}
}

// initSourceRepo creates a local repository with one commit to clone
// from, avoiding any network dependency.
func initSourceRepo(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dir := filepath.Join(t.TempDir(), "source")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) {
		t.Helper()
		command := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
		command.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.org",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.org",
		)
		if output, err := command.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, output)
		}
	}

	run("init")
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('semaforo')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "main.py")
	run("commit", "-m", "initial")
	return dir
}

func TestCloneAndExists(t *testing.T) {
	requireGit(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source := initSourceRepo(t)
	target := filepath.Join(t.TempDir(), "checkout")

	repo := NewRepository(target)
	if repo.Exists() {
		t.Fatal("Exists before clone = true")
	}

	cloned, err := repo.Clone(ctx, source)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if !cloned {
		t.Error("Clone = false on first clone, want true")
	}
	if !repo.Exists() {
		t.Error("Exists after clone = false")
	}

	// Second clone is tolerated, not an error.
	cloned, err = repo.Clone(ctx, source)
	if err != nil {
		t.Fatalf("second Clone: %v", err)
	}
	if cloned {
		t.Error("second Clone = true, want false (already present)")
	}
}

func TestCloneBadRemote(t *testing.T) {
	requireGit(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := NewRepository(filepath.Join(t.TempDir(), "checkout"))
	_, err := repo.Clone(ctx, filepath.Join(t.TempDir(), "no-such-source"))
	if err == nil {
		t.Fatal("Clone from missing source = nil error")
	}
	if !strings.Contains(err.Error(), "git clone") {
		t.Errorf("error %q does not identify the failing command", err)
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireGit(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source := initSourceRepo(t)
	repo := NewRepository(source)

	output, err := repo.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(output) != "true" {
		t.Errorf("rev-parse output = %q, want true", output)
	}
}
