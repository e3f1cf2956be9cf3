// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the provisioner's build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/fiat-mx/provision/lib/version.Version=v1.2.3".
var Version = "dev"

// Info returns a human-readable version string including the VCS
// revision when the binary was built from a git checkout.
func Info() string {
	revision := "unknown"
	dirty := ""
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) >= 12 {
					revision = setting.Value[:12]
				} else if setting.Value != "" {
					revision = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					dirty = "-dirty"
				}
			}
		}
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, revision, dirty, runtime.Version())
}
