// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/fiat-mx/provision/lib/cron"
)

// Placeholder values shipped in the default config. Validate rejects
// them: a run against the placeholders would clone a repository that
// does not exist and serve a domain nobody owns.
const (
	PlaceholderRepoURL = "https://github.com/YOUR_USER/fiat.git"
	PlaceholderDomain  = "example.com"
)

// Config is the complete provisioner configuration.
type Config struct {
	// ServiceUser is the dedicated account the pipeline runs as.
	ServiceUser string `yaml:"service_user"`

	// RepoURL is the git remote the pipeline is cloned from.
	RepoURL string `yaml:"repo_url"`

	// Domain is the public domain the reverse proxy serves. It is not
	// consumed by the provisioner itself (the nginx config in the
	// checkout references it) but is validated so the operator is
	// forced to replace the placeholder before provisioning.
	Domain string `yaml:"domain"`

	// Packages is the apt package list installed before anything else.
	Packages []string `yaml:"packages"`

	// Schedules holds the two pipeline cron schedules.
	Schedules Schedules `yaml:"schedules"`

	// Nginx configures the reverse proxy site install.
	Nginx Nginx `yaml:"nginx"`

	// Paths configures provisioner-owned file locations.
	Paths Paths `yaml:"paths"`

	// LogRotation configures `fiat-provision logs rotate`.
	LogRotation LogRotation `yaml:"log_rotation"`
}

// Schedules holds the two cron expressions for the pipeline jobs.
type Schedules struct {
	// Light runs the pipeline with --skip-trends. Google Trends is
	// rate-limited, so the frequent job always skips it.
	Light string `yaml:"light"`

	// Full runs the complete pipeline, trends included, on a longer
	// period.
	Full string `yaml:"full"`
}

// Nginx configures the reverse-proxy site install.
type Nginx struct {
	// SiteName is the file name under sites-available/sites-enabled.
	SiteName string `yaml:"site_name"`

	// ConfigInRepo is the checkout-relative path of the site config.
	ConfigInRepo string `yaml:"config_in_repo"`

	// AvailableDir and EnabledDir are the nginx site directories.
	AvailableDir string `yaml:"available_dir"`
	EnabledDir   string `yaml:"enabled_dir"`

	// RemoveDefault removes the distribution's default site symlink.
	RemoveDefault bool `yaml:"remove_default"`
}

// Paths configures provisioner-owned file locations.
type Paths struct {
	// StateDir holds the checkpoint state file and the run lock.
	StateDir string `yaml:"state_dir"`

	// CronFile is the system crontab written for the pipeline jobs.
	CronFile string `yaml:"cron_file"`
}

// LogRotation configures rotation of the pipeline's cron log files.
type LogRotation struct {
	// MaxBytes triggers rotation once a log file reaches this size.
	MaxBytes int64 `yaml:"max_bytes"`

	// Keep is the number of compressed generations retained per file.
	Keep int `yaml:"keep"`
}

// Default returns the configuration reproducing the original setup
// procedure's constants.
func Default() *Config {
	return &Config{
		ServiceUser: "fiat",
		RepoURL:     PlaceholderRepoURL,
		Domain:      PlaceholderDomain,
		Packages: []string{
			"python3",
			"python3-venv",
			"python3-pip",
			"nginx",
			"certbot",
			"python3-certbot-nginx",
			"git",
		},
		Schedules: Schedules{
			Light: "*/30 * * * *",
			Full:  "20 */6 * * *",
		},
		Nginx: Nginx{
			SiteName:      "fiat",
			ConfigInRepo:  "deploy/nginx.conf",
			AvailableDir:  "/etc/nginx/sites-available",
			EnabledDir:    "/etc/nginx/sites-enabled",
			RemoveDefault: true,
		},
		Paths: Paths{
			StateDir: "/var/lib/fiat-provision",
			CronFile: "/etc/cron.d/fiat",
		},
		LogRotation: LogRotation{
			MaxBytes: 10 * 1024 * 1024,
			Keep:     5,
		},
	}
}

// Load reads path and unmarshals it over the defaults, so a config
// file only needs to state what differs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// userNamePattern matches useradd's default NAME_REGEX.
var userNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)

// Validate checks the configuration for values that would make a
// provisioning run fail late or silently do the wrong thing.
func (c *Config) Validate() error {
	if c.ServiceUser == "" {
		return fmt.Errorf("service_user must not be empty")
	}
	if len(c.ServiceUser) > 32 || !userNamePattern.MatchString(c.ServiceUser) {
		return fmt.Errorf("service_user %q is not a valid account name", c.ServiceUser)
	}
	if c.RepoURL == "" {
		return fmt.Errorf("repo_url must not be empty")
	}
	if c.RepoURL == PlaceholderRepoURL {
		return fmt.Errorf("repo_url is still the placeholder %q; set it to the pipeline's git remote", PlaceholderRepoURL)
	}
	if c.Domain == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if c.Domain == PlaceholderDomain {
		return fmt.Errorf("domain is still the placeholder %q; set it to the site's public domain", PlaceholderDomain)
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("packages must not be empty")
	}
	if err := cron.Validate(c.Schedules.Light); err != nil {
		return fmt.Errorf("schedules.light: %w", err)
	}
	if err := cron.Validate(c.Schedules.Full); err != nil {
		return fmt.Errorf("schedules.full: %w", err)
	}
	if c.Nginx.SiteName == "" {
		return fmt.Errorf("nginx.site_name must not be empty")
	}
	if filepath.IsAbs(c.Nginx.ConfigInRepo) {
		return fmt.Errorf("nginx.config_in_repo must be relative to the checkout, got %q", c.Nginx.ConfigInRepo)
	}
	if c.LogRotation.MaxBytes <= 0 {
		return fmt.Errorf("log_rotation.max_bytes must be positive")
	}
	if c.LogRotation.Keep < 1 {
		return fmt.Errorf("log_rotation.keep must be at least 1")
	}
	return nil
}

// HomeDir returns the service user's home directory. Provisioning
// always creates the account with --create-home under /home.
func (c *Config) HomeDir() string { return filepath.Join("/home", c.ServiceUser) }

// CheckoutDir returns where the pipeline repository is cloned.
func (c *Config) CheckoutDir() string { return filepath.Join(c.HomeDir(), "fiat") }

// VenvDir returns the isolated Python environment directory.
func (c *Config) VenvDir() string { return filepath.Join(c.CheckoutDir(), "venv") }

// LogsDir returns the pipeline's log directory.
func (c *Config) LogsDir() string { return filepath.Join(c.CheckoutDir(), "logs") }

// CronLog and CronFullLog return the two append-only job log files.
func (c *Config) CronLog() string     { return filepath.Join(c.LogsDir(), "cron.log") }
func (c *Config) CronFullLog() string { return filepath.Join(c.LogsDir(), "cron-full.log") }

// PipelineCommand returns the shell command line that runs the
// pipeline inside the venv from the checkout directory. skipTrends
// appends the flag that skips the rate-limited trends stage.
func (c *Config) PipelineCommand(skipTrends bool) string {
	command := fmt.Sprintf("cd %s && %s/bin/python main.py", c.CheckoutDir(), c.VenvDir())
	if skipTrends {
		command += " --skip-trends"
	}
	return command
}

// NginxConfigSource returns the absolute path of the site config
// inside the checkout.
func (c *Config) NginxConfigSource() string {
	return filepath.Join(c.CheckoutDir(), c.Nginx.ConfigInRepo)
}
