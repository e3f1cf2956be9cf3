// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the checkout
// step. All repository-scoped commands target a specific directory via
// the -C flag, which is injected automatically.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fiat-mx/provision/lib/sysuser"
)

// Repository represents a working tree at a specific directory. All
// operations target this directory via "git -C <dir>"; there is no
// default directory, callers always say which repository they mean.
type Repository struct {
	dir string

	// account, when set, runs every git process as that account
	// instead of the provisioner's (root) identity. The checkout must
	// be owned by the service user, not root.
	account *sysuser.Account
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// AsUser returns a copy of the repository whose git processes run as
// the given account, with HOME pointed at the account's home so git
// reads that user's global config instead of root's.
func (r *Repository) AsUser(account *sysuser.Account) *Repository {
	return &Repository{dir: r.dir, account: account}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string { return r.dir }

// Exists reports whether the directory already contains a git
// checkout (a .git entry is present).
func (r *Repository) Exists() bool {
	_, err := os.Stat(filepath.Join(r.dir, ".git"))
	return err == nil
}

// Clone clones url into the repository directory, creating parent
// directories as needed. Returns cloned=false without error when a
// checkout is already present; re-running provisioning must tolerate
// an existing clone, matching git's own "destination path already
// exists" refusal.
func (r *Repository) Clone(ctx context.Context, url string) (cloned bool, err error) {
	if r.Exists() {
		return false, nil
	}

	// git clone creates the final path component itself.
	command := exec.CommandContext(ctx, "git", "clone", url, r.dir)
	var stderr bytes.Buffer
	command.Stdout = os.Stdout
	command.Stderr = &stderr
	if r.account != nil {
		command.SysProcAttr = &syscall.SysProcAttr{Credential: r.account.Credential()}
		command.Env = r.account.Environ()
	}

	if err := command.Run(); err != nil {
		return false, fmt.Errorf("git clone %s into %s: %w (stderr: %s)",
			url, r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return true, nil
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if r.account != nil {
		command.SysProcAttr = &syscall.SysProcAttr{Credential: r.account.Credential()}
		command.Env = r.account.Environ()
	}

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
