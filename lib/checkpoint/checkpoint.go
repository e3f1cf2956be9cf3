// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

// Package checkpoint persists provisioning progress so an interrupted
// run resumes after its last completed step instead of forcing a full
// re-run. The state is keyed by a fingerprint of the plan: when the
// plan changes, earlier progress no longer describes the same work and
// the checkpoint is discarded.
package checkpoint

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// stateFile is the file name inside the state directory.
const stateFile = "state.json"

// planKey is the BLAKE3 keyed-hash domain for plan fingerprints. The
// bytes are the ASCII domain name zero-padded to 32 bytes, making the
// key readable in hex dumps without weakening the hash.
var planKey = [32]byte{
	'f', 'i', 'a', 't', '.', 'p', 'r', 'o', 'v', 'i', 's', 'i', 'o', 'n', '.',
	'p', 'l', 'a', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// State records which steps of a specific plan have completed.
type State struct {
	// Fingerprint identifies the plan this progress belongs to.
	Fingerprint string `json:"fingerprint"`

	// Completed holds the names of completed steps, in completion order.
	Completed []string `json:"completed"`

	// UpdatedAt is the time of the last completion, for operators
	// inspecting the state file.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCompleted reports whether the named step has completed.
func (s *State) IsCompleted(name string) bool {
	for _, completed := range s.Completed {
		if completed == name {
			return true
		}
	}
	return false
}

// Store reads and writes checkpoint state under a directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the state file path.
func (s *Store) Path() string { return filepath.Join(s.dir, stateFile) }

// Load returns the persisted state for the plan with the given
// fingerprint. A missing state file, an unreadable one, or one
// recorded for a different plan all yield a fresh empty state: a
// stale checkpoint must never suppress steps of a changed plan.
func (s *Store) Load(fingerprint string) *State {
	fresh := &State{Fingerprint: fingerprint}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		return fresh
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fresh
	}
	if state.Fingerprint != fingerprint {
		return fresh
	}
	return &state
}

// MarkCompleted appends a step to the state and persists it
// immediately, so a crash between steps loses at most the step in
// flight.
func (s *Store) MarkCompleted(state *State, name string) error {
	if !state.IsCompleted(name) {
		state.Completed = append(state.Completed, name)
	}
	state.UpdatedAt = time.Now().UTC()
	return s.save(state)
}

// Clear removes the persisted state. Used by --no-resume and after the
// plan changes semantics.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}

// save writes the state atomically (temp file + rename) so a crash
// mid-write never corrupts the previous state.
func (s *Store) save(state *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	temp := s.Path() + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(temp, s.Path()); err != nil {
		return fmt.Errorf("committing checkpoint: %w", err)
	}
	return nil
}

// Fingerprint hashes a canonical plan encoding into a hex string.
// Keyed BLAKE3 provides domain separation from any other hashing in
// the system.
func Fingerprint(data []byte) string {
	hasher, err := blake3.NewKeyed(planKey[:])
	if err != nil {
		// The key is a fixed 32-byte constant; NewKeyed only fails on
		// a wrong key length.
		panic(fmt.Sprintf("checkpoint: keyed hasher: %v", err))
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
