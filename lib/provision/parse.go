// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the plan. Custom plans are authored as
// JSONC, meaning JSON extended with // line comments, /* block comments */,
// and trailing commas, and can only contain shell steps.
func Parse(data []byte) (*Plan, error) {
	stripped := jsonc.ToJSON(data)

	var plan Plan
	if err := json.Unmarshal(stripped, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// ReadFile reads a JSONC plan file from disk.
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}
