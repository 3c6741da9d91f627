// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fake provides an in-memory Factory/Container test double so the
// container runtime's unit tests never need a real module container.
package fake

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/container"
)

// Factory is a container.Factory that hands out *Containers backed by
// in-memory bundle state.
type Factory struct {
	mu         sync.Mutex
	Properties map[string]string
	Created    *Container
}

func (f *Factory) Create(properties map[string]string) (container.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Properties = properties
	f.Created = &Container{bundles: map[string]*bundleState{}}
	return f.Created, nil
}

type bundleState struct {
	startLevel int
	started    bool
}

// Container is an in-memory container.Container. Stop closes an internal
// channel so a test-driven WaitForStop unblocks deterministically.
type Container struct {
	mu      sync.Mutex
	bundles map[string]*bundleState

	Initialized bool
	Started     int
	stopped     chan struct{}

	// NextStopReason is returned once by WaitForStop, then resets to
	// Stopped for subsequent calls (simulating a single update cycle).
	NextStopReason container.StopReason
}

func (c *Container) Init(ctx context.Context) error {
	c.Initialized = true
	return nil
}

func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	c.Started++
	c.stopped = make(chan struct{})
	c.mu.Unlock()
	return nil
}

func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped != nil {
		select {
		case <-c.stopped:
		default:
			close(c.stopped)
		}
	}
	return nil
}

func (c *Container) IsInstalled(location string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bundles[location]
	return ok
}

func (c *Container) InstallBundle(location string, src io.ReadCloser) error {
	defer src.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles[location] = &bundleState{}
	return nil
}

func (c *Container) UpdateBundle(location string, src io.ReadCloser) error {
	defer src.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bundles[location]; !ok {
		c.bundles[location] = &bundleState{}
	}
	return nil
}

func (c *Container) UninstallBundle(location string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bundles, location)
	return nil
}

func (c *Container) SetStartLevel(location string, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[location]; ok {
		b.startLevel = level
	}
	return nil
}

func (c *Container) SetAutostart(location string, started bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[location]; ok {
		b.started = started
	}
	return nil
}

func (c *Container) Locations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.bundles))
	for loc := range c.bundles {
		out = append(out, loc)
	}
	return out
}

func (c *Container) StartLevel(location string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[location]; ok {
		return b.startLevel
	}
	return 0
}

// Autostarted reports the autostart intent last set for location.
func (c *Container) Autostarted(location string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.bundles[location]; ok {
		return b.started
	}
	return false
}

func (c *Container) WaitForStop(ctx context.Context, timeout time.Duration) (container.StopReason, error) {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()

	if stopped != nil {
		select {
		case <-stopped:
		case <-ctx.Done():
			return container.TimedOut, nil
		}
	}

	// The reason is sampled only once the container has actually stopped,
	// so a test may set NextStopReason any time before it calls Stop.
	c.mu.Lock()
	reason := c.NextStopReason
	c.NextStopReason = container.Stopped
	c.mu.Unlock()
	return reason, nil
}
