// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package instance

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/internal/pkg/props"
	"gotest.tools/v3/assert"
)

func TestAcquireCreatesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inst")
	c := New(dir)
	assert.NilError(t, c.Acquire())
	defer c.Release()

	assert.Assert(t, Valid(dir))
}

func TestAcquireIsReentrant(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inst")
	c := New(dir)
	assert.NilError(t, c.Acquire())
	assert.NilError(t, c.Acquire())

	assert.NilError(t, c.Release())
	// Still held after one release (count went 2 -> 1).
	assert.Equal(t, c.count, 1)
	assert.NilError(t, c.Release())
	assert.Equal(t, c.count, 0)
}

func TestSecondAcquireFromAnotherControllerFails(t *testing.T) {
	// At most one holder of the lock at a time: a second *Controller*
	// (simulating a second process) against the same path must fail with
	// InstanceBusy while the first holds the lock.
	dir := filepath.Join(t.TempDir(), "inst")

	first := New(dir)
	assert.NilError(t, first.Acquire())
	defer first.Release()

	second := New(dir)
	err := second.Acquire()
	assert.Assert(t, err != nil)

	var le *launchererr.Error
	assert.Assert(t, errors.As(err, &le))
	assert.Equal(t, le.Kind, launchererr.InstanceBusy)
}

func TestDeleteRefusesInvalidPath(t *testing.T) {
	dir := t.TempDir()
	err := Delete(filepath.Join(dir, "not-an-instance"))
	assert.Assert(t, err != nil)
}

func TestDeleteRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inst")
	c := New(dir)
	assert.NilError(t, c.Acquire())
	assert.NilError(t, c.Persist(EffectiveProperties{
		System:    props.Properties{"a": "1"},
		Launching: props.New(),
		Framework: props.New(),
	}))
	assert.NilError(t, c.Release())

	assert.NilError(t, Delete(dir))
	assert.Assert(t, !Valid(dir))

	// A second package-level Delete refuses: the path no longer looks
	// like an instance. The delete verb maps this refusal to an
	// informational no-op.
	err := Delete(dir)
	assert.Assert(t, err != nil)
}

func TestPopulateConfRespectsOverwriteMode(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	assert.NilError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(src, "app.cfg"), []byte("from-source"), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(src, "sub", "extra.cfg"), []byte("extra"), 0o644))

	dir := filepath.Join(root, "inst")
	c := New(dir)
	assert.NilError(t, c.Acquire())
	defer c.Release()

	// Seed an existing user-edited file under conf/.
	assert.NilError(t, os.MkdirAll(c.ConfDir(), 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(c.ConfDir(), "app.cfg"), []byte("user-edit"), 0o644))

	// Create mode keeps the user edit but fills in missing files.
	assert.NilError(t, c.PopulateConf(src, false))
	got, err := os.ReadFile(filepath.Join(c.ConfDir(), "app.cfg"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "user-edit")
	got, err = os.ReadFile(filepath.Join(c.ConfDir(), "sub", "extra.cfg"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "extra")

	// Update mode overwrites unconditionally.
	assert.NilError(t, c.PopulateConf(src, true))
	got, err = os.ReadFile(filepath.Join(c.ConfDir(), "app.cfg"))
	assert.NilError(t, err)
	assert.Equal(t, string(got), "from-source")
}

func TestRestoreDoesNotOverwriteInMemoryValue(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inst")
	c := New(dir)
	assert.NilError(t, c.Acquire())
	defer c.Release()

	assert.NilError(t, c.Persist(EffectiveProperties{
		System:    props.Properties{"a": "disk-value", "b": "disk-only"},
		Launching: props.New(),
		Framework: props.New(),
	}))

	current := EffectiveProperties{
		System:    props.Properties{"a": "cli-value"},
		Launching: props.New(),
		Framework: props.New(),
	}
	assert.NilError(t, c.Restore(current))

	assert.Equal(t, current.System["a"], "cli-value")
	assert.Equal(t, current.System["b"], "disk-only")
}
