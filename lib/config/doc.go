// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the provisioner.
//
// Configuration is loaded from a single YAML file passed via --config.
// There are no fallbacks and no automatic discovery: every value either
// comes from the file or from the documented default. This keeps a
// provisioning run deterministic and auditable.
//
// The defaults reproduce the constants of the original setup procedure.
// Two of them are deliberate placeholders, the repository URL and the
// public domain, and Validate rejects them so a run cannot proceed
// until the operator has supplied real values.
package config
