// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysuser provisions the dedicated service account the
// pipeline runs as, and resolves it into credentials for running
// child processes under that account.
package sysuser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"syscall"
)

// useraddExitExists is useradd's documented exit code for "username
// already in use".
const useraddExitExists = 9

// Account is a resolved system account.
type Account struct {
	Name string
	UID  uint32
	GID  uint32
	Home string
}

// Ensure creates the account with a home directory and a login shell.
// Returns created=false without error when the account already exists;
// re-running provisioning must not fail here.
func Ensure(ctx context.Context, name string) (created bool, err error) {
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, "useradd", "--create-home", "--shell", "/bin/bash", name)
	command.Stderr = &stderr

	runErr := command.Run()
	if runErr == nil {
		return true, nil
	}

	var exitError *exec.ExitError
	if errors.As(runErr, &exitError) && exitError.ExitCode() == useraddExitExists {
		return false, nil
	}
	return false, fmt.Errorf("useradd %s: %w (stderr: %s)", name, runErr, strings.TrimSpace(stderr.String()))
}

// Lookup resolves an account name into numeric credentials and the
// home directory.
func Lookup(name string) (*Account, error) {
	entry, err := user.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("looking up account %s: %w", name, err)
	}

	uid, err := strconv.ParseUint(entry.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("account %s: non-numeric uid %q: %w", name, entry.Uid, err)
	}
	gid, err := strconv.ParseUint(entry.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("account %s: non-numeric gid %q: %w", name, entry.Gid, err)
	}

	return &Account{
		Name: name,
		UID:  uint32(uid),
		GID:  uint32(gid),
		Home: entry.HomeDir,
	}, nil
}

// Credential returns the syscall credential for running a child
// process as this account. Used instead of shelling out to su/sudo:
// the provisioner already runs as root, so it can drop to the service
// account directly on the child process.
func (a *Account) Credential() *syscall.Credential {
	return &syscall.Credential{Uid: a.UID, Gid: a.GID}
}

// Environ returns the environment for a child process running as this
// account: the provisioner's environment with HOME, USER, and LOGNAME
// rewritten. Credential only switches the uid; the environment is
// inherited as-is, and git and pip resolve dotfiles and caches through
// HOME. Inheriting root's HOME sends the service user into /root,
// where an existing .gitconfig fails the clone with EACCES.
func (a *Account) Environ() []string {
	environ := os.Environ()
	kept := environ[:0]
	for _, entry := range environ {
		key, _, _ := strings.Cut(entry, "=")
		if key == "HOME" || key == "USER" || key == "LOGNAME" {
			continue
		}
		kept = append(kept, entry)
	}
	return append(kept,
		"HOME="+a.Home,
		"USER="+a.Name,
		"LOGNAME="+a.Name,
	)
}

// Chown makes the account own path.
func (a *Account) Chown(path string) error {
	if err := syscall.Chown(path, int(a.UID), int(a.GID)); err != nil {
		return fmt.Errorf("chown %s to %s: %w", path, a.Name, err)
	}
	return nil
}
