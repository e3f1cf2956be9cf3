// Copyright 2026 The Fiat Provision Authors
// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFreshState(t *testing.T) {
	store := NewStore(t.TempDir())
	state := store.Load("abc")
	if state.Fingerprint != "abc" {
		t.Errorf("Fingerprint = %q, want abc", state.Fingerprint)
	}
	if len(state.Completed) != 0 {
		t.Errorf("Completed = %v, want empty", state.Completed)
	}
}

func TestMarkCompletedPersists(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	state := store.Load("fp1")
	for _, name := range []string{"system-update", "install-packages"} {
		if err := store.MarkCompleted(state, name); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", name, err)
		}
	}

	reloaded := NewStore(dir).Load("fp1")
	if !reloaded.IsCompleted("system-update") || !reloaded.IsCompleted("install-packages") {
		t.Errorf("reloaded Completed = %v", reloaded.Completed)
	}
	if reloaded.IsCompleted("install-cron") {
		t.Error("IsCompleted reports a step that never ran")
	}
	if reloaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not recorded")
	}
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	state := store.Load("fp1")
	for i := 0; i < 3; i++ {
		if err := store.MarkCompleted(state, "create-user"); err != nil {
			t.Fatal(err)
		}
	}
	if len(state.Completed) != 1 {
		t.Errorf("Completed = %v, want single entry", state.Completed)
	}
}

func TestFingerprintChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	state := store.Load("old-plan")
	if err := store.MarkCompleted(state, "system-update"); err != nil {
		t.Fatal(err)
	}

	changed := NewStore(dir).Load("new-plan")
	if changed.IsCompleted("system-update") {
		t.Error("progress survived a plan fingerprint change")
	}
	if changed.Fingerprint != "new-plan" {
		t.Errorf("Fingerprint = %q, want new-plan", changed.Fingerprint)
	}
}

func TestLoadCorruptState(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	state := store.Load("fp")
	if len(state.Completed) != 0 {
		t.Error("corrupt state file yielded progress")
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	state := store.Load("fp")
	if err := store.MarkCompleted(state, "step"); err != nil {
		t.Fatal(err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Error("state file still present after Clear")
	}

	// Clearing again is fine.
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint([]byte("plan-a"))
	if a != Fingerprint([]byte("plan-a")) {
		t.Error("Fingerprint not deterministic")
	}
	if a == Fingerprint([]byte("plan-b")) {
		t.Error("distinct plans share a fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestLockExcludesSecondAcquirer(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	if _, err := AcquireLock(dir); err == nil {
		t.Error("second AcquireLock = nil error, want conflict")
	}
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock after release: %v", err)
	}
	again.Release()

	if _, err := os.Stat(filepath.Join(dir, "run.lock")); err != nil {
		t.Errorf("lock file removed, want left in place: %v", err)
	}
}
