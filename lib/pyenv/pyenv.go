// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package pyenv manages the pipeline's isolated Python runtime: a venv
// inside the checkout plus its declared dependencies. All processes
// run as the service user so the environment is owned by the account
// that will use it.
package pyenv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fiat-mx/provision/lib/sysuser"
)

// Venv is an isolated Python environment at a fixed directory.
type Venv struct {
	dir     string
	account *sysuser.Account
}

// New returns a Venv at dir whose processes run as account, with HOME
// rewritten so pip keeps its cache under the account's home. A nil
// account runs them as the current user (tests).
func New(dir string, account *sysuser.Account) *Venv {
	return &Venv{dir: dir, account: account}
}

// Dir returns the environment directory.
func (v *Venv) Dir() string { return v.dir }

// Exists reports whether the environment has already been created.
// The pyvenv.cfg marker distinguishes a venv from an unrelated
// directory at the same path.
func (v *Venv) Exists() bool {
	_, err := os.Stat(filepath.Join(v.dir, "pyvenv.cfg"))
	return err == nil
}

// Create creates the venv. Returns created=false without error when
// it already exists.
func (v *Venv) Create(ctx context.Context) (created bool, err error) {
	if v.Exists() {
		return false, nil
	}
	if err := v.run(ctx, "python3", "-m", "venv", v.dir); err != nil {
		return false, err
	}
	return true, nil
}

// InstallRequirements installs the manifest at requirementsPath into
// the environment. Failure here is fatal to provisioning: a pipeline
// without its dependencies cannot run, so nothing after this step may
// proceed.
func (v *Venv) InstallRequirements(ctx context.Context, requirementsPath string) error {
	pip := filepath.Join(v.dir, "bin", "pip")
	return v.run(ctx, pip, "install", "-r", requirementsPath)
}

func (v *Venv) run(ctx context.Context, name string, args ...string) error {
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = os.Stdout
	command.Stderr = os.Stderr
	if v.account != nil {
		command.SysProcAttr = &syscall.SysProcAttr{Credential: v.account.Credential()}
		command.Env = v.account.Environ()
	}

	if err := command.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
