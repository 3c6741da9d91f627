// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package container

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/deploy"
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/internal/pkg/match"
	"github.com/apptainer/modlauncher/internal/pkg/props"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// Reserved property keys. PrepareProperties always overwrites KeyInstance
// and KeyInstanceConfiguration, sets KeyContainerStorage only when the map
// has no value for it, and strips KeyContainerStorageClean on start; it
// never injects KeyContainerStorageClean itself.
const (
	KeyInstance              = "launcher.instance"
	KeyInstanceConfiguration = "launcher.instance.configuration"
	KeyContainerStorage      = "container.storage"
	KeyContainerStorageClean = "container.storage.clean"
)

// Runtime drives one container's lifecycle. It holds the only state shared
// between the control flow and the command-channel receive goroutine: the
// kill flag and the container handle, both behind mu.
type Runtime struct {
	factory Factory
	path    string // absolute instance path

	mu        sync.Mutex
	container Container
	killed    bool
}

// New returns a Runtime bound to factory and the absolute instance path.
func New(factory Factory, instancePath string) *Runtime {
	return &Runtime{factory: factory, path: instancePath}
}

// PrepareProperties injects the reserved keys, strips
// container.storage.clean when stripClean is true (a start must never wipe
// storage on restart), then interpolates every value against the resulting
// map.
func (r *Runtime) PrepareProperties(framework props.Properties, stripClean bool) map[string]string {
	out := framework.Clone()

	abs, err := filepath.Abs(r.path)
	if err != nil {
		abs = r.path
	}
	out[KeyInstance] = abs
	out[KeyInstanceConfiguration] = filepath.Join(abs, "conf")
	if _, ok := out[KeyContainerStorage]; !ok {
		out[KeyContainerStorage] = filepath.Join(abs, "data")
	}

	if stripClean {
		delete(out, KeyContainerStorageClean)
	}

	interpolated := props.InterpolateMap(out)
	result := make(map[string]string, len(interpolated))
	for k, v := range interpolated {
		result[k] = v
	}
	return result
}

// Init creates and initializes the container from the prepared properties.
func (r *Runtime) Init(ctx context.Context, properties map[string]string) error {
	c, err := r.factory.Create(properties)
	if err != nil {
		return launchererr.New(launchererr.ContainerFault, fmt.Errorf("create container: %w", err))
	}
	if err := c.Init(ctx); err != nil {
		return launchererr.New(launchererr.ContainerFault, fmt.Errorf("init container: %w", err))
	}

	r.mu.Lock()
	r.container = c
	r.mu.Unlock()
	return nil
}

// Kill sets the kill flag and stops the container. Once set, the
// start/restart loop refuses to restart even on STOPPED_UPDATE. Safe to
// call from any goroutine (the command-channel receive goroutine calls it
// on a peer "stop").
func (r *Runtime) Kill(ctx context.Context) error {
	r.mu.Lock()
	r.killed = true
	c := r.container
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	if err := c.Stop(ctx); err != nil {
		return launchererr.New(launchererr.ContainerFault, err)
	}
	return nil
}

func (r *Runtime) isKilled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

// Run drives the launch state machine: start, wait for
// stop, and on STOPPED_UPDATE restart unless Kill has been called in the
// meantime. It returns once the container reaches a terminal STOPPED or
// TIMEDOUT state, or once Kill wins the race against a restart.
func (r *Runtime) Run(ctx context.Context, shutdownTimeout time.Duration) (StopReason, error) {
	r.mu.Lock()
	c := r.container
	r.mu.Unlock()
	if c == nil {
		return Stopped, launchererr.Newf(launchererr.ContainerFault, "runtime: container not initialized")
	}

	for {
		if r.isKilled() {
			return Stopped, nil
		}
		if err := c.Start(ctx); err != nil {
			return Stopped, launchererr.New(launchererr.ContainerFault, fmt.Errorf("start container: %w", err))
		}

		reason, err := c.WaitForStop(ctx, shutdownTimeout)
		if err != nil {
			return reason, launchererr.New(launchererr.ContainerFault, err)
		}
		if reason == TimedOut {
			sylog.Warningf("runtime: wait for stop timed out after %s", shutdownTimeout)
			return reason, nil
		}
		if reason == StoppedUpdate {
			if !r.isKilled() {
				continue
			}
			// A kill racing the update stop wins: the loop refuses to
			// restart and the stop is reported as terminal.
			return Stopped, nil
		}
		return reason, nil
	}
}

// DeployPlan walks plan's already-sorted bundles and performs each entry's
// install/update/uninstall against the container. A single bundle's
// failure is logged and does not abort the remaining entries.
func (r *Runtime) DeployPlan(plan *deploy.Plan) {
	r.mu.Lock()
	c := r.container
	r.mu.Unlock()

	for _, b := range plan.Bundles {
		r.deployOne(c, b)
	}
}

func (r *Runtime) deployOne(c Container, b deploy.Bundle) {
	installed := c.IsInstalled(b.Location)

	switch {
	case !installed && b.Actions.Has(deploy.Install) && b.Source != nil:
		src, err := b.Source()
		if err != nil {
			sylog.Errorf("runtime: open bundle source for %s: %s", b.Location, err)
			return
		}
		if err := c.InstallBundle(b.Location, src); err != nil {
			sylog.Errorf("runtime: install %s: %s", b.Location, err)
			return
		}
		r.applySettings(c, b)

	case installed && b.Actions.Has(deploy.Uninstall) && b.Source == nil:
		if err := c.UninstallBundle(b.Location); err != nil {
			sylog.Errorf("runtime: uninstall %s: %s", b.Location, err)
		}

	case installed && b.Actions.Has(deploy.Update) && b.Source != nil:
		src, err := b.Source()
		if err != nil {
			sylog.Errorf("runtime: open bundle source for %s: %s", b.Location, err)
			return
		}
		if err := c.UpdateBundle(b.Location, src); err != nil {
			sylog.Errorf("runtime: update %s: %s", b.Location, err)
			return
		}
		r.applySettings(c, b)

	default:
		// No matching combination: no-op.
	}
}

func (r *Runtime) applySettings(c Container, b deploy.Bundle) {
	if b.StartLevel > 0 {
		if err := c.SetStartLevel(b.Location, b.StartLevel); err != nil {
			sylog.Errorf("runtime: set start level for %s: %s", b.Location, err)
		}
	}
	switch b.Autostart {
	case deploy.AutostartStarted:
		if err := c.SetAutostart(b.Location, true); err != nil {
			sylog.Errorf("runtime: set autostart for %s: %s", b.Location, err)
		}
	case deploy.AutostartStopped:
		if err := c.SetAutostart(b.Location, false); err != nil {
			sylog.Errorf("runtime: set autostart for %s: %s", b.Location, err)
		}
	}
}

// UninstallByPattern compiles patterns as restricted globs and uninstalls
// every currently-installed bundle whose location matches any of them. The
// system/root bundle is already excluded by Container.Locations.
func (r *Runtime) UninstallByPattern(patterns []string) error {
	r.mu.Lock()
	c := r.container
	r.mu.Unlock()

	compiled := make([]*match.Pattern, len(patterns))
	for i, p := range patterns {
		compiled[i] = match.Compile(p)
	}

	for _, loc := range c.Locations() {
		for _, p := range compiled {
			if p.Match(loc) {
				if err := c.UninstallBundle(loc); err != nil {
					sylog.Errorf("runtime: uninstall %s: %s", loc, err)
				}
				break
			}
		}
	}
	return nil
}
