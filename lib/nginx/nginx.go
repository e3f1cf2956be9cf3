// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package nginx installs and enables the reverse-proxy site for the
// pipeline's dashboard. The site config itself ships inside the
// pipeline checkout; this package only places it, validates the
// resulting nginx configuration, and reloads the service.
package nginx

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Site describes one nginx site managed by the provisioner.
type Site struct {
	// Name is the file name under AvailableDir and EnabledDir.
	Name string

	// ConfigSource is the file copied into AvailableDir.
	ConfigSource string

	// AvailableDir and EnabledDir are the nginx site directories
	// (normally /etc/nginx/sites-available and .../sites-enabled).
	AvailableDir string
	EnabledDir   string
}

// AvailablePath returns the installed config path.
func (s *Site) AvailablePath() string { return filepath.Join(s.AvailableDir, s.Name) }

// EnabledPath returns the enable symlink path.
func (s *Site) EnabledPath() string { return filepath.Join(s.EnabledDir, s.Name) }

// Install copies the site config into AvailableDir and (re)creates the
// enable symlink. Re-running replaces both, so an updated config in
// the checkout takes effect on the next provisioning run.
func (s *Site) Install() error {
	content, err := os.ReadFile(s.ConfigSource)
	if err != nil {
		return fmt.Errorf("reading site config %s: %w", s.ConfigSource, err)
	}
	if err := os.WriteFile(s.AvailablePath(), content, 0o644); err != nil {
		return fmt.Errorf("installing site config %s: %w", s.AvailablePath(), err)
	}

	// Recreate the symlink unconditionally: it may point elsewhere or
	// be a stale regular file from a hand-managed install.
	if err := os.Remove(s.EnabledPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old enable link %s: %w", s.EnabledPath(), err)
	}
	if err := os.Symlink(s.AvailablePath(), s.EnabledPath()); err != nil {
		return fmt.Errorf("enabling site %s: %w", s.Name, err)
	}
	return nil
}

// RemoveDefaultSite removes the distribution's default site from
// EnabledDir so the pipeline site answers on the default server name.
// A missing default site is not an error.
func (s *Site) RemoveDefaultSite() error {
	path := filepath.Join(s.EnabledDir, "default")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing default site %s: %w", path, err)
	}
	return nil
}

// Validate runs "nginx -t". A failed syntax check must abort
// provisioning before any reload is attempted; reloading nginx into a
// broken config would take the site down.
func Validate(ctx context.Context) error {
	return runQuiet(ctx, "nginx", "-t")
}

// Reload reloads the nginx service. Callers must run Validate first.
func Reload(ctx context.Context) error {
	return runQuiet(ctx, "systemctl", "reload", "nginx")
}

func runQuiet(ctx context.Context, name string, args ...string) error {
	var output bytes.Buffer
	command := exec.CommandContext(ctx, name, args...)
	command.Stdout = &output
	command.Stderr = &output

	if err := command.Run(); err != nil {
		return fmt.Errorf("%s %s: %w (output: %s)",
			name, strings.Join(args, " "), err, strings.TrimSpace(output.String()))
	}
	return nil
}
