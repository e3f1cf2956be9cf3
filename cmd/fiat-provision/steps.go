// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiat-mx/provision/lib/apt"
	"github.com/fiat-mx/provision/lib/config"
	"github.com/fiat-mx/provision/lib/cron"
	"github.com/fiat-mx/provision/lib/git"
	"github.com/fiat-mx/provision/lib/nginx"
	"github.com/fiat-mx/provision/lib/provision"
	"github.com/fiat-mx/provision/lib/pyenv"
	"github.com/fiat-mx/provision/lib/sysuser"
)

// buildPlan assembles the default provisioning plan from the
// configuration. Steps execute in order, fail-fast; each tolerates
// finding its work already done, so the plan can be re-run after a
// failure or to converge a drifted server.
//
// Go-action steps carry their configuration inputs in Detail so that a
// config change (different repo URL, different schedules) changes the
// plan fingerprint and invalidates stale checkpoints.
func buildPlan(cfg *config.Config) *provision.Plan {
	// The service account does not exist until create-user has run, so
	// actions resolve it at execution time, not here.
	account := func() (*sysuser.Account, error) {
		return sysuser.Lookup(cfg.ServiceUser)
	}

	return &provision.Plan{
		Name: "fiat-server",
		Steps: []provision.Step{
			{
				Name:    "system-update",
				Summary: "Refresh the package index and upgrade installed packages",
				Do: func(ctx context.Context) (provision.Status, error) {
					if err := apt.Update(ctx); err != nil {
						return provision.StatusFailed, err
					}
					if err := apt.Upgrade(ctx); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "install-packages",
				Summary: "Install required system packages",
				Detail:  strings.Join(cfg.Packages, " "),
				Do: func(ctx context.Context) (provision.Status, error) {
					if err := apt.Install(ctx, cfg.Packages...); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "create-user",
				Summary: fmt.Sprintf("Create the %s service account", cfg.ServiceUser),
				Detail:  cfg.ServiceUser,
				Do: func(ctx context.Context) (provision.Status, error) {
					created, err := sysuser.Ensure(ctx, cfg.ServiceUser)
					if err != nil {
						return provision.StatusFailed, err
					}
					if !created {
						return provision.StatusSatisfied, nil
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "clone-repo",
				Summary: fmt.Sprintf("Clone the pipeline repository into %s", cfg.CheckoutDir()),
				Detail:  cfg.RepoURL + " " + cfg.CheckoutDir(),
				Do: func(ctx context.Context) (provision.Status, error) {
					acct, err := account()
					if err != nil {
						return provision.StatusFailed, err
					}
					repo := git.NewRepository(cfg.CheckoutDir()).AsUser(acct)
					cloned, err := repo.Clone(ctx, cfg.RepoURL)
					if err != nil {
						return provision.StatusFailed, err
					}
					if !cloned {
						return provision.StatusSatisfied, nil
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "create-venv",
				Summary: "Create the Python virtual environment",
				Detail:  cfg.VenvDir(),
				Do: func(ctx context.Context) (provision.Status, error) {
					acct, err := account()
					if err != nil {
						return provision.StatusFailed, err
					}
					created, err := pyenv.New(cfg.VenvDir(), acct).Create(ctx)
					if err != nil {
						return provision.StatusFailed, err
					}
					if !created {
						return provision.StatusSatisfied, nil
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "install-requirements",
				Summary: "Install Python dependencies into the virtual environment",
				Detail:  cfg.VenvDir(),
				Do: func(ctx context.Context) (provision.Status, error) {
					acct, err := account()
					if err != nil {
						return provision.StatusFailed, err
					}
					venv := pyenv.New(cfg.VenvDir(), acct)
					requirements := filepath.Join(cfg.CheckoutDir(), "requirements.txt")
					if err := venv.InstallRequirements(ctx, requirements); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "install-nginx-site",
				Summary: "Install and enable the nginx site, validate, and reload",
				Detail:  cfg.NginxConfigSource() + " " + cfg.Nginx.SiteName,
				Do: func(ctx context.Context) (provision.Status, error) {
					site := &nginx.Site{
						Name:         cfg.Nginx.SiteName,
						ConfigSource: cfg.NginxConfigSource(),
						AvailableDir: cfg.Nginx.AvailableDir,
						EnabledDir:   cfg.Nginx.EnabledDir,
					}
					if err := site.Install(); err != nil {
						return provision.StatusFailed, err
					}
					if cfg.Nginx.RemoveDefault {
						if err := site.RemoveDefaultSite(); err != nil {
							return provision.StatusFailed, err
						}
					}
					// Validation failure aborts before the reload is
					// attempted, leaving the running config untouched.
					if err := nginx.Validate(ctx); err != nil {
						return provision.StatusFailed, err
					}
					if err := nginx.Reload(ctx); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "install-cron",
				Summary: fmt.Sprintf("Register the pipeline cron jobs in %s", cfg.Paths.CronFile),
				Detail: strings.Join([]string{
					cfg.Schedules.Light, cfg.Schedules.Full,
					cfg.PipelineCommand(true), cfg.PipelineCommand(false),
				}, " "),
				Do: func(ctx context.Context) (provision.Status, error) {
					file := &cron.File{
						Comment: "fiat pipeline jobs, managed by fiat-provision",
						Entries: []cron.Entry{
							{
								Schedule: cfg.Schedules.Light,
								User:     cfg.ServiceUser,
								Command:  fmt.Sprintf("%s >> %s 2>&1", cfg.PipelineCommand(true), cfg.CronLog()),
							},
							{
								Schedule: cfg.Schedules.Full,
								User:     cfg.ServiceUser,
								Command:  fmt.Sprintf("%s >> %s 2>&1", cfg.PipelineCommand(false), cfg.CronFullLog()),
							},
						},
					}
					if err := file.Install(cfg.Paths.CronFile); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				Name:    "create-log-dir",
				Summary: fmt.Sprintf("Create the pipeline log directory %s", cfg.LogsDir()),
				Detail:  cfg.LogsDir(),
				Do: func(ctx context.Context) (provision.Status, error) {
					acct, err := account()
					if err != nil {
						return provision.StatusFailed, err
					}
					if _, err := os.Stat(cfg.LogsDir()); err == nil {
						return provision.StatusSatisfied, nil
					}
					if err := os.MkdirAll(cfg.LogsDir(), 0o755); err != nil {
						return provision.StatusFailed, fmt.Errorf("creating %s: %w", cfg.LogsDir(), err)
					}
					if err := acct.Chown(cfg.LogsDir()); err != nil {
						return provision.StatusFailed, err
					}
					return provision.StatusOK, nil
				},
			},
			{
				// The pipeline's first invocation is synchronous so the
				// operator sees it work before the cron jobs take over.
				// Always the light variant: the full pipeline hits the
				// rate-limited trends source.
				Name:    "first-run",
				Summary: "Run the pipeline once to verify the installation",
				Run:     cfg.PipelineCommand(true),
				User:    cfg.ServiceUser,
				Timeout: "2h",
			},
		},
	}
}
