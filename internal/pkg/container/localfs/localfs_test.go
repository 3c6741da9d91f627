// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/apptainer/modlauncher/internal/pkg/container"
	"gotest.tools/v3/assert"
)

func newContainer(t *testing.T, storage string) *Container {
	t.Helper()
	c, err := Factory{}.Create(map[string]string{container.KeyContainerStorage: storage})
	assert.NilError(t, err)
	assert.NilError(t, c.Init(context.Background()))
	return c.(*Container)
}

func install(t *testing.T, c *Container, location string) {
	t.Helper()
	assert.NilError(t, c.InstallBundle(location, io.NopCloser(strings.NewReader("archive-bytes"))))
}

func TestLocationsReturnsInstalledLocationStrings(t *testing.T) {
	c := newContainer(t, t.TempDir())
	install(t, c, "file:/libs/a.jar")
	install(t, c, "file:/apps/b.jar")

	// Locations must hand back the location keys themselves, not the
	// hashed on-disk filenames, so glob patterns over locations can match.
	assert.DeepEqual(t, c.Locations(), []string{"file:/apps/b.jar", "file:/libs/a.jar"})
}

func TestLocationsSurviveRestart(t *testing.T) {
	storage := t.TempDir()
	c := newContainer(t, storage)
	install(t, c, "file:/libs/a.jar")

	// A fresh container over the same storage sees the prior install.
	restarted := newContainer(t, storage)
	assert.Assert(t, restarted.IsInstalled("file:/libs/a.jar"))
	assert.DeepEqual(t, restarted.Locations(), []string{"file:/libs/a.jar"})
}

func TestUninstallRemovesLocation(t *testing.T) {
	c := newContainer(t, t.TempDir())
	install(t, c, "file:/libs/a.jar")

	assert.NilError(t, c.UninstallBundle("file:/libs/a.jar"))
	assert.Assert(t, !c.IsInstalled("file:/libs/a.jar"))
	assert.Equal(t, len(c.Locations()), 0)

	// A second uninstall of the same location is tolerated.
	assert.NilError(t, c.UninstallBundle("file:/libs/a.jar"))
}
