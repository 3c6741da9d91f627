// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/channel"
	"github.com/apptainer/modlauncher/internal/pkg/instance"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/cmdline"
	"github.com/spf13/cobra"
	"gotest.tools/v3/assert"
)

func writeTestBundle(t *testing.T, path string) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	assert.NilError(t, os.WriteFile(path, []byte("archive-bytes"), 0o644))
}

// TestDeployStartStopDeleteLifecycle walks the full verb sequence:
// deploying a single bundle persists the three etc/*.properties files and
// stages the bundle, starting the instance binds the command channel and
// writes instance.link with a non-zero port, a peer stop shuts it down,
// and delete returns the filesystem to its pre-deploy state.
func TestDeployStartStopDeleteLifecycle(t *testing.T) {
	root := t.TempDir()
	bundleDir := filepath.Join(root, "src")
	writeTestBundle(t, filepath.Join(bundleDir, "testing", "testing-1.0.0.jar"))

	instancePath := filepath.Join(root, "inst")

	deployBundleStore = []string{bundleDir}
	deployFrameworkProperties = ""
	deployLaunchingProperties = ""
	deploySystemProperties = ""
	deployProperty = map[string]string{}

	deployCtx := &cobra.Command{}
	deployCtx.SetContext(context.Background())
	assert.NilError(t, deployCmd.RunE(deployCtx, []string{instancePath}))

	assert.Assert(t, instance.Valid(instancePath))
	for _, f := range []string{"framework.properties", "launching.properties", "system.properties"} {
		_, err := os.Stat(filepath.Join(instancePath, "etc", f))
		assert.NilError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commandAddress = "127.0.0.1"
	commandPort = 0
	commandSecret = ""
	uninstallBundles = nil

	startCtx := &cobra.Command{}
	startCtx.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- startCmd.RunE(startCtx, []string{instancePath}) }()

	linkPath := filepath.Join(instancePath, "instance.link")
	var link channel.Link
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		link, err = channel.ReadLink(linkPath)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.NilError(t, err)
	assert.Assert(t, link.Port != "0")
	assert.Assert(t, link.Port != "")

	stopCtx := &cobra.Command{}
	stopCtx.SetContext(context.Background())
	assert.NilError(t, stopCmd.RunE(stopCtx, []string{instancePath}))

	select {
	case runErr := <-done:
		assert.NilError(t, runErr)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not exit after stop")
	}

	_, err = os.Stat(linkPath)
	assert.Assert(t, os.IsNotExist(err))

	deleteCtx := &cobra.Command{}
	assert.NilError(t, deleteCmd.RunE(deleteCtx, []string{instancePath}))
	assert.Assert(t, !instance.Valid(instancePath))

	// A second delete on the same (now absent) path is not an error.
	assert.NilError(t, deleteCmd.RunE(deleteCtx, []string{instancePath}))
}

func TestExitCodeForKinds(t *testing.T) {
	assert.Equal(t, exitCodeFor(nil), 0)
	assert.Equal(t, exitCodeFor(cmdline.FlagError("bad flag")), 2)
	assert.Equal(t, exitCodeFor(cmdline.CommandError("no command")), 2)
	assert.Equal(t, exitCodeFor(launchererr.New(launchererr.ConfigError, nil)), 3)
	assert.Equal(t, exitCodeFor(launchererr.New(launchererr.InstanceBusy, nil)), 4)
	assert.Equal(t, exitCodeFor(launchererr.New(launchererr.Cancelled, nil)), 0)
	assert.Equal(t, exitCodeFor(errors.New("plain")), 1)
}
