// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apptainer/modlauncher/internal/pkg/props"
	"github.com/apptainer/modlauncher/pkg/sylog"
)

// BundleSource describes one bundle source: a directory of bundle files,
// plus an optional deployment.properties file. If Path names a file rather
// than a directory, its parent directory is used as the source and the
// file is read as the properties file.
type BundleSource struct {
	Path string
}

// resolve splits BundleSource.Path into (directory, properties file path).
func (s BundleSource) resolve() (dir, propsFile string, err error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return "", "", fmt.Errorf("deploy: stat source %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return s.Path, filepath.Join(s.Path, "deployment.properties"), nil
	}
	return filepath.Dir(s.Path), s.Path, nil
}

// Build computes the deployment plan for the given ordered bundle sources
// and global launching-properties defaults. warn receives a message for
// every ambiguous scoped-override resolution; pass nil for silent
// operation.
func Build(sources []BundleSource, launching props.Properties, warn func(string)) (*Plan, error) {
	if warn == nil {
		warn = func(string) {}
	}

	var all []*Bundle

	for _, src := range sources {
		dir, propsFile, err := src.resolve()
		if err != nil {
			return nil, err
		}

		local, err := props.LoadFile(propsFile)
		if err != nil {
			return nil, err
		}

		cfg := resolveSourceConfig(dir, launching, local)

		files, err := discover(dir, cfg)
		if err != nil {
			return nil, err
		}

		bundles := make([]*Bundle, 0, len(files))
		for _, relPath := range files {
			settings := cfg.resolveOverrides(relPath, warn)
			location := cfg.locationRoot + relPath
			b := &Bundle{
				Location:   location,
				Actions:    settings.Actions,
				StartLevel: settings.StartLevel,
				Autostart:  settings.Autostart,
				Source:     openerFor(filepath.Join(dir, filepath.FromSlash(relPath))),
				relPath:    relPath,
			}
			bundles = append(bundles, b)
			sylog.Verbosef("deploy: discovered bundle %s (location=%s)", relPath, location)
		}

		applyLocationOverrides(&bundles, cfg, warn)

		all = append(all, bundles...)
	}

	sortBundles(all)

	plan := &Plan{}
	for _, b := range all {
		plan.Bundles = append(plan.Bundles, *b)
	}
	return plan, nil
}

// discover walks dir for regular files whose uniform relative path matches
// cfg's search filter, and returns them sorted by (component count
// ascending, lexicographic per component) for platform-independent,
// deterministic ordering.
func discover(dir string, cfg sourceConfig) ([]string, error) {
	var rel []string

	entries, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("deploy: stat %s: %w", dir, err)
	}
	if !entries.IsDir() {
		return nil, fmt.Errorf("deploy: %s is not a directory", dir)
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		uniform := filepath.ToSlash(relPath)
		if cfg.matchesSearch(uniform) {
			rel = append(rel, uniform)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy: walk %s: %w", dir, err)
	}

	sort.Slice(rel, func(i, j int) bool { return lessByComponents(rel[i], rel[j]) })
	return rel, nil
}

func lessByComponents(a, b string) bool {
	pa := strings.Split(a, "/")
	pb := strings.Split(b, "/")
	if len(pa) != len(pb) {
		return len(pa) < len(pb)
	}
	for i := range pa {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}

func openerFor(path string) Source {
	return func() (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// applyLocationOverrides implements the bundle.location@<glob> rule: for
// each discovered bundle, the best-rank matching location override (if a
// unique one exists) reassigns its Location; a pattern that matched no
// discovered bundle at all instead defines a brand-new, sourceless bundle,
// the hook for declaring explicit uninstall targets.
func applyLocationOverrides(bundles *[]*Bundle, cfg sourceConfig, warn func(string)) {
	if len(cfg.scopedLocation) == 0 {
		return
	}

	seen := make(map[string]bool, len(cfg.scopedLocation))

	for _, b := range *bundles {
		for _, rule := range cfg.scopedLocation {
			if rule.pattern.Match(b.relPath) {
				seen[rule.pattern.String()] = true
			}
		}
		if best := bestLocation(cfg.scopedLocation, b.relPath); len(best) == 1 {
			b.Location = best[0].location
		} else if len(best) > 1 {
			warn("ambiguous bundle.location override for " + b.relPath)
		}
	}

	for _, rule := range cfg.scopedLocation {
		if seen[rule.pattern.String()] {
			continue
		}
		relPath := rule.pattern.String()
		settings := cfg.resolveOverrides(relPath, warn)
		*bundles = append(*bundles, &Bundle{
			Location:   rule.location,
			Actions:    settings.Actions,
			StartLevel: settings.StartLevel,
			Autostart:  settings.Autostart,
			Source:     nil,
			relPath:    relPath,
		})
	}
}
