// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package container wraps the external module-container factory supplied
// by the host environment and drives its lifecycle: property preparation,
// plan execution, and the init -> start -> wait-for-stop -> restart-on-update
// state machine.
package container

import (
	"context"
	"io"
	"time"
)

// StopReason is the outcome of WaitForStop.
type StopReason int

const (
	Stopped StopReason = iota
	StoppedUpdate
	TimedOut
)

// Container is the handle the Factory hands back once created. Its methods
// are the operations the launcher needs from the host-supplied container.
type Container interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// IsInstalled reports whether a bundle is currently installed at
	// location.
	IsInstalled(location string) bool

	InstallBundle(location string, src io.ReadCloser) error
	UpdateBundle(location string, src io.ReadCloser) error
	UninstallBundle(location string) error

	SetStartLevel(location string, level int) error
	SetAutostart(location string, started bool) error

	// Locations returns every bundle currently installed, excluding the
	// system/root bundle (id 0).
	Locations() []string

	// WaitForStop blocks until the container stops or timeout elapses (a
	// non-positive timeout means wait indefinitely).
	WaitForStop(ctx context.Context, timeout time.Duration) (StopReason, error)
}

// Factory creates a Container from a prepared property map. Its exact API
// surface beyond this single method is owned by the host environment; the
// core never embeds or reimplements a container.
type Factory interface {
	Create(properties map[string]string) (Container, error)
}
