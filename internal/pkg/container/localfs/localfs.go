// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package localfs is the reference container.Factory shipped with this
// launcher so cmd/modlauncher is runnable standalone: it installs bundles
// as plain files under the instance's data directory and "runs" by
// blocking until stopped. A real deployment replaces it with a factory
// wrapping the host's actual module container, the one seam the core
// itself never implements.
package localfs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/container"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// indexFileName is the per-storage file recording one installed bundle
// location per line. The on-disk bundle filenames are hashed, so the index
// is the only place the original location strings survive a restart.
const indexFileName = "bundles.index"

// Factory creates localfs Containers rooted at the storage directory found
// in each call's properties (container.KeyContainerStorage).
type Factory struct{}

func (Factory) Create(properties map[string]string) (container.Container, error) {
	storage := properties[container.KeyContainerStorage]
	if storage == "" {
		return nil, fmt.Errorf("localfs: missing %s property", container.KeyContainerStorage)
	}
	return &Container{
		storage:   storage,
		installed: map[string]struct{}{},
		levels:    map[string]int{},
		autostart: map[string]bool{},
	}, nil
}

// Container tracks installed bundle files on disk and a simple run/stop
// signal; it performs no actual code loading.
type Container struct {
	storage string

	mu        sync.Mutex
	installed map[string]struct{}
	levels    map[string]int
	autostart map[string]bool

	running chan struct{}
}

func (c *Container) Init(ctx context.Context) error {
	if err := os.MkdirAll(c.storage, 0o755); err != nil {
		return err
	}
	return c.loadIndex()
}

func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	c.running = make(chan struct{})
	c.mu.Unlock()
	sylog.Verbosef("localfs: container started, storage=%s", c.storage)
	return nil
}

func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running != nil {
		select {
		case <-c.running:
		default:
			close(c.running)
		}
	}
	return nil
}

func (c *Container) indexPath() string {
	return filepath.Join(c.storage, indexFileName)
}

// loadIndex rebuilds the installed-location set from the index file, so
// Locations and IsInstalled keep answering with the real location strings
// across restarts of the same instance.
func (c *Container) loadIndex() error {
	f, err := os.Open(c.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if loc := scanner.Text(); loc != "" {
			c.installed[loc] = struct{}{}
		}
	}
	return scanner.Err()
}

// saveIndexLocked rewrites the index file from the installed set, sorted
// for stable output. Callers must hold c.mu.
func (c *Container) saveIndexLocked() error {
	locations := make([]string, 0, len(c.installed))
	for loc := range c.installed {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	f, err := os.Create(c.indexPath())
	if err != nil {
		return err
	}
	for _, loc := range locations {
		if _, err := fmt.Fprintln(f, loc); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func (c *Container) bundlePath(location string) string {
	return filepath.Join(c.storage, "bundles", sanitize(location))
}

func sanitize(location string) string {
	return filepath.Base(location) + "-" + fmt.Sprintf("%x", hashString(location))
}

// hashString is a tiny FNV-1a implementation kept local to avoid pulling
// hash/fnv into this reference factory's import set for one call site.
func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (c *Container) IsInstalled(location string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.installed[location]
	return ok
}

func (c *Container) InstallBundle(location string, src io.ReadCloser) error {
	defer src.Close()
	path := c.bundlePath(location)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.installed[location] = struct{}{}
	return c.saveIndexLocked()
}

func (c *Container) UpdateBundle(location string, src io.ReadCloser) error {
	return c.InstallBundle(location, src)
}

func (c *Container) UninstallBundle(location string) error {
	if err := os.Remove(c.bundlePath(location)); err != nil && !os.IsNotExist(err) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.installed, location)
	return c.saveIndexLocked()
}

func (c *Container) SetStartLevel(location string, level int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[location] = level
	return nil
}

func (c *Container) SetAutostart(location string, started bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autostart[location] = started
	return nil
}

func (c *Container) Locations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.installed))
	for loc := range c.installed {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

func (c *Container) WaitForStop(ctx context.Context, timeout time.Duration) (container.StopReason, error) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running == nil {
		return container.Stopped, nil
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-running:
		return container.Stopped, nil
	case <-ctx.Done():
		return container.TimedOut, ctx.Err()
	case <-timer:
		return container.TimedOut, nil
	}
}
