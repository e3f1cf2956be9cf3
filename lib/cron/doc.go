// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses standard 5-field cron expressions, computes the
// next occurrence after a given time, and renders /etc/cron.d files.
//
// Supported expression syntax:
//
//	┌───────────── minute (0-59)
//	│ ┌───────────── hour (0-23)
//	│ │ ┌───────────── day of month (1-31)
//	│ │ │ ┌───────────── month (1-12)
//	│ │ │ │ ┌───────────── day of week (0-6, 0=Sunday)
//	│ │ │ │ │
//	* * * * *
//
// Each field supports single values (5), ranges (1-5), lists (1,3,5),
// steps (*/15, 1-30/5), and the wildcard. No @hourly shortcuts, no
// seconds field, no named days or months: the /etc/cron.d entries
// written by the provisioner use the plain numeric form exclusively,
// so the parser accepts exactly what the renderer emits.
package cron
