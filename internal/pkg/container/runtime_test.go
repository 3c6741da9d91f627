// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package container_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/container"
	"github.com/apptainer/modlauncher/internal/pkg/container/fake"
	"github.com/apptainer/modlauncher/internal/pkg/deploy"
	"github.com/apptainer/modlauncher/internal/pkg/props"
	"gotest.tools/v3/assert"
)

func nopSource() (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

func TestPrepareInjectsReservedKeys(t *testing.T) {
	r := container.New(&fake.Factory{}, "/tmp/inst")
	out := r.PrepareProperties(props.New(), false)

	assert.Equal(t, out[container.KeyInstance], "/tmp/inst")
	assert.Equal(t, out[container.KeyInstanceConfiguration], "/tmp/inst/conf")
	assert.Equal(t, out[container.KeyContainerStorage], "/tmp/inst/data")
}

func TestPrepareStripsCleanFlagOnStart(t *testing.T) {
	r := container.New(&fake.Factory{}, "/tmp/inst")
	framework := props.Properties{container.KeyContainerStorageClean: "true"}

	out := r.PrepareProperties(framework, true)
	_, ok := out[container.KeyContainerStorageClean]
	assert.Assert(t, !ok)
}

func TestInitCreatesAndInitializesContainer(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")

	assert.NilError(t, r.Init(context.Background(), map[string]string{"a": "1"}))
	assert.Assert(t, f.Created.Initialized)
	assert.Equal(t, f.Properties["a"], "1")
}

func TestRunReturnsStoppedWithoutRestart(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))

	f.Created.NextStopReason = container.Stopped
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Created.Stop(context.Background())
	}()

	reason, err := r.Run(context.Background(), 2*time.Second)
	assert.NilError(t, err)
	assert.Equal(t, reason, container.Stopped)
	assert.Equal(t, f.Created.Started, 1)
}

func TestRunRestartsOnStoppedUpdate(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))

	restarted := false
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Created.NextStopReason = container.StoppedUpdate
		f.Created.Stop(context.Background())

		time.Sleep(10 * time.Millisecond)
		restarted = true
		f.Created.NextStopReason = container.Stopped
		f.Created.Stop(context.Background())
	}()

	reason, err := r.Run(context.Background(), 2*time.Second)
	assert.NilError(t, err)
	assert.Equal(t, reason, container.Stopped)
	assert.Assert(t, restarted)
	assert.Equal(t, f.Created.Started, 2)
}

func TestKillPreventsRestartAfterStoppedUpdate(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Created.NextStopReason = container.StoppedUpdate
		r.Kill(context.Background())
	}()

	reason, err := r.Run(context.Background(), 2*time.Second)
	assert.NilError(t, err)
	assert.Equal(t, reason, container.Stopped)
	assert.Equal(t, f.Created.Started, 1)
}

func TestDeployPlanInstallsUninstalledBundleWithInstallAction(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))

	plan := &deploy.Plan{Bundles: []deploy.Bundle{
		{Location: "file:/a.bundle", Actions: deploy.ActionSet(deploy.Install), Source: nopSource},
	}}
	r.DeployPlan(plan)

	assert.Assert(t, f.Created.IsInstalled("file:/a.bundle"))
}

func TestDeployPlanUninstallsInstalledBundleWithUninstallAction(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))
	assert.NilError(t, f.Created.InstallBundle("file:/a.bundle", io.NopCloser(nil)))

	plan := &deploy.Plan{Bundles: []deploy.Bundle{
		{Location: "file:/a.bundle", Actions: deploy.ActionSet(deploy.Uninstall)},
	}}
	r.DeployPlan(plan)

	assert.Assert(t, !f.Created.IsInstalled("file:/a.bundle"))
}

func TestDeployPlanNoOpWhenInstalledWithInstallOnlyAction(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))
	assert.NilError(t, f.Created.InstallBundle("file:/a.bundle", io.NopCloser(nil)))

	plan := &deploy.Plan{Bundles: []deploy.Bundle{
		{Location: "file:/a.bundle", Actions: deploy.ActionSet(deploy.Install), Source: nopSource},
	}}
	r.DeployPlan(plan)

	// Still installed, no second install attempted: an Install action with
	// an already-installed bundle and no Update bit does nothing.
	assert.Assert(t, f.Created.IsInstalled("file:/a.bundle"))
}

func TestDeployPlanAppliesStartLevelAndAutostart(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))

	plan := &deploy.Plan{Bundles: []deploy.Bundle{
		{
			Location:   "file:/a.bundle",
			Actions:    deploy.ActionSet(deploy.Install),
			Source:     nopSource,
			StartLevel: 5,
			Autostart:  deploy.AutostartStarted,
		},
	}}
	r.DeployPlan(plan)

	assert.Equal(t, f.Created.StartLevel("file:/a.bundle"), 5)
	assert.Assert(t, f.Created.Autostarted("file:/a.bundle"))
}

func TestUninstallByPatternMatchesGlob(t *testing.T) {
	f := &fake.Factory{}
	r := container.New(f, "/tmp/inst")
	assert.NilError(t, r.Init(context.Background(), nil))
	assert.NilError(t, f.Created.InstallBundle("file:/libs/a.bundle", io.NopCloser(nil)))
	assert.NilError(t, f.Created.InstallBundle("file:/apps/b.bundle", io.NopCloser(nil)))

	assert.NilError(t, r.UninstallByPattern([]string{"file:/libs/*"}))

	assert.Assert(t, !f.Created.IsInstalled("file:/libs/a.bundle"))
	assert.Assert(t, f.Created.IsInstalled("file:/apps/b.bundle"))
}
