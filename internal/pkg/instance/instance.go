// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package instance owns the on-disk instance directory: it enforces
// single-writer access via an advisory byte-range lock on instance.lock
// and persists the three effective property maps under etc/.
package instance

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/internal/pkg/props"
	"github.com/apptainer/modlauncher/pkg/sylog"
	"github.com/apptainer/modlauncher/pkg/util/fs/lock"
	"golang.org/x/sys/unix"
)

const (
	lockFileName = "instance.lock"
	linkFileName = "instance.link"
	etcDir       = "etc"
	confDir      = "conf"
	dataDir      = "data"

	systemPropsFile    = "system.properties"
	launchingPropsFile = "launching.properties"
	frameworkPropsFile = "framework.properties"
)

// Controller owns one instance directory. Acquisition is re-entrant within
// a process: repeated calls to Acquire against the same *Controller bump a
// counter, and the underlying file lock is released only when the counter
// returns to zero or Abort is called.
type Controller struct {
	path string

	mu    sync.Mutex
	count int
	fd    int
	br    *lock.ByteRange
}

// New returns a controller for the instance at path. It does not touch the
// filesystem; call Acquire to materialize and lock the instance.
func New(path string) *Controller {
	return &Controller{path: path, fd: -1}
}

// Path returns the instance's root directory.
func (c *Controller) Path() string {
	return c.path
}

// EtcDir, ConfDir, DataDir return the instance's well-known subpaths.
func (c *Controller) EtcDir() string  { return filepath.Join(c.path, etcDir) }
func (c *Controller) ConfDir() string { return filepath.Join(c.path, confDir) }
func (c *Controller) DataDir() string { return filepath.Join(c.path, dataDir) }
func (c *Controller) LockFile() string {
	return filepath.Join(c.path, lockFileName)
}
func (c *Controller) LinkFile() string {
	return filepath.Join(c.path, linkFileName)
}

// Acquire runs the acquisition protocol: create the
// instance directory, open/create instance.lock, take a non-blocking
// exclusive byte-range lock over it, and ensure etc/ exists. A second call
// on the same Controller (from the same process) bumps the re-entrancy
// counter instead of re-locking.
func (c *Controller) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count > 0 {
		if c.count == math.MaxInt32 {
			sylog.Fatalf("instance: re-entrant lock counter saturated for %s", c.path)
		}
		c.count++
		return nil
	}

	if err := os.MkdirAll(c.path, 0o755); err != nil {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("create instance directory: %w", err))
	}

	fd, err := unix.Open(c.LockFile(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("open %s: %w", c.LockFile(), err))
	}

	br := lock.NewByteRange(fd, 0, 0)
	if err := br.Lock(); err != nil {
		unix.Close(fd)
		if err == lock.ErrByteRangeAcquired {
			return launchererr.New(launchererr.InstanceBusy, fmt.Errorf("instance %s is in use", c.path))
		}
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("lock %s: %w", c.LockFile(), err))
	}

	if err := os.MkdirAll(c.EtcDir(), 0o755); err != nil {
		br.Unlock()
		unix.Close(fd)
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("create etc directory: %w", err))
	}

	c.fd = fd
	c.br = br
	c.count = 1
	return nil
}

// Release undoes one Acquire. When the re-entrancy counter reaches zero the
// underlying file lock and descriptor are released.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == 0 {
		return nil
	}
	c.count--
	if c.count > 0 {
		return nil
	}
	return c.unlockLocked()
}

// Abort immediately drops the lock regardless of the re-entrancy counter.
func (c *Controller) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return nil
	}
	c.count = 0
	return c.unlockLocked()
}

func (c *Controller) unlockLocked() error {
	if c.br == nil {
		return nil
	}
	err := c.br.Unlock()
	unix.Close(c.fd)
	c.br = nil
	c.fd = -1
	if err != nil {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("unlock %s: %w", c.LockFile(), err))
	}
	return nil
}

// WithInstance acquires path for the duration of fn and guarantees release
// on every exit path.
func WithInstance(path string, fn func(*Controller) error) error {
	c := New(path)
	if err := c.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := c.Release(); err != nil {
			sylog.Warningf("instance: release %s: %s", path, err)
		}
	}()
	return fn(c)
}

// Valid reports whether path "looks like" a valid instance: its etc/
// subdirectory exists.
func Valid(path string) bool {
	info, err := os.Stat(filepath.Join(path, etcDir))
	return err == nil && info.IsDir()
}

// Delete removes the instance at path. It refuses unless the path has an
// etc/ subdirectory (Valid), then recursively removes everything but the
// lock file, then the lock file, then the now-empty directory -- an order
// that tolerates a concurrent Acquire attempt racing the final unlink.
func Delete(path string) error {
	if !Valid(path) {
		return launchererr.Newf(launchererr.InstanceIO, "instance: %s does not look like a valid instance", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return launchererr.New(launchererr.InstanceIO, err)
	}

	lockPath := filepath.Join(path, lockFileName)
	for _, e := range entries {
		full := filepath.Join(path, e.Name())
		if full == lockPath {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			return launchererr.New(launchererr.InstanceIO, fmt.Errorf("remove %s: %w", full, err))
		}
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("remove %s: %w", lockPath, err))
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return launchererr.New(launchererr.InstanceIO, fmt.Errorf("remove %s: %w", path, err))
	}
	return nil
}

// EffectiveProperties groups the three property maps persisted under etc/.
type EffectiveProperties struct {
	System    props.Properties
	Launching props.Properties
	Framework props.Properties
}

// Persist writes the three effective maps under etc/, sorted, so the
// files always reflect what was last deployed.
func (c *Controller) Persist(p EffectiveProperties) error {
	files := map[string]props.Properties{
		systemPropsFile:    p.System,
		launchingPropsFile: p.Launching,
		frameworkPropsFile: p.Framework,
	}
	for name, m := range files {
		if m == nil {
			m = props.New()
		}
		if err := props.SaveFile(filepath.Join(c.EtcDir(), name), m); err != nil {
			return launchererr.New(launchererr.InstanceIO, err)
		}
	}
	return nil
}

// Restore loads the three persisted maps from etc/ and merges each into
// the corresponding field of current without overwriting a key already
// present: CLI overrides dominate persisted defaults.
func (c *Controller) Restore(current EffectiveProperties) error {
	pairs := []struct {
		file string
		dst  props.Properties
	}{
		{systemPropsFile, current.System},
		{launchingPropsFile, current.Launching},
		{frameworkPropsFile, current.Framework},
	}
	for _, p := range pairs {
		disk, err := props.LoadFile(filepath.Join(c.EtcDir(), p.file))
		if err != nil {
			return launchererr.New(launchererr.InstanceIO, err)
		}
		p.dst.Merge(disk)
	}
	return nil
}
