// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"fmt"
	"os"
	"strings"
)

// Entry is one line of a system crontab: a schedule, the account the
// command runs as, and the command itself.
type Entry struct {
	// Schedule is a 5-field cron expression. Render validates it.
	Schedule string

	// User is the account the command runs as. System crontabs
	// (/etc/cron.d) carry the user between the schedule and the command.
	User string

	// Command is the shell command line, including any output
	// redirection.
	Command string
}

// File is a complete /etc/cron.d file: a comment header plus entries.
type File struct {
	// Comment is written as "# ..." lines at the top of the file.
	// Multi-line comments use embedded newlines.
	Comment string

	// Entries are the scheduled jobs, rendered in order.
	Entries []Entry
}

// Render produces the file content. Every entry's schedule is parsed
// first; a malformed schedule fails the whole render so a broken
// crontab is never written to disk.
func (f *File) Render() ([]byte, error) {
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("cron: file has no entries")
	}

	var builder strings.Builder
	for _, line := range strings.Split(strings.TrimRight(f.Comment, "\n"), "\n") {
		if line != "" {
			fmt.Fprintf(&builder, "# %s\n", line)
		}
	}
	builder.WriteString("SHELL=/bin/sh\n")
	builder.WriteString("PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin\n")

	for _, entry := range f.Entries {
		schedule, err := Parse(entry.Schedule)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry.Command, err)
		}
		if entry.User == "" {
			return nil, fmt.Errorf("entry %q: user is required in a system crontab", entry.Command)
		}
		if strings.TrimSpace(entry.Command) == "" {
			return nil, fmt.Errorf("entry with schedule %q: command is empty", entry.Schedule)
		}
		fmt.Fprintf(&builder, "%s %s %s\n", schedule, entry.User, entry.Command)
	}

	return []byte(builder.String()), nil
}

// Install renders the file and writes it to path with the 0644 mode
// cron requires (cron.d files must not be writable by anyone but root,
// and files with other modes are silently ignored by some crons).
func (f *File) Install(path string) error {
	content, err := f.Render()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing crontab %s: %w", path, err)
	}
	return nil
}
