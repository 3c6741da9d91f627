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
	"math"
	"path/filepath"
	"strings"

	"github.com/apptainer/modlauncher/internal/pkg/match"
	"github.com/apptainer/modlauncher/internal/pkg/props"
)

// minInt is the sentinel start.level value treated as 0, so negating a
// scoped level can never underflow.
const minInt = math.MinInt32

// Settings is the inherited default settings record attached to a source,
// and the per-bundle resolved settings after scoped overrides apply.
type Settings struct {
	Actions    ActionSet
	StartLevel int // 0 means "leave unchanged"
	Autostart  Autostart
}

// parseStartLevel converts a raw start.level integer into the (autostart,
// level) pair. ok is false when the value means "no change" (n == 0 or
// n == minInt).
func parseStartLevel(n int) (autostart Autostart, level int, ok bool) {
	if n == 0 || n == minInt {
		return AutostartUnspecified, 0, false
	}
	if n > 0 {
		return AutostartStarted, n, true
	}
	return AutostartStopped, -n, true
}

// parseActionSet parses a comma-separated, case-insensitive subset of
// {INSTALL, UPDATE, UNINSTALL}.
func parseActionSet(raw string) ActionSet {
	var set ActionSet
	for _, tok := range strings.Split(raw, ",") {
		switch strings.ToUpper(strings.TrimSpace(tok)) {
		case "INSTALL":
			set |= ActionSet(Install)
		case "UPDATE":
			set |= ActionSet(Update)
		case "UNINSTALL":
			set |= ActionSet(Uninstall)
		}
	}
	return set
}

// scopedLevel is one `start.level@<glob>` rule.
type scopedLevel struct {
	pattern *match.Pattern
	raw     int
}

// scopedAction is one `deployment.action@<glob>` rule.
type scopedAction struct {
	pattern *match.Pattern
	set     ActionSet
}

// scopedLocation is one `bundle.location@<glob>` rule.
type scopedLocation struct {
	pattern  *match.Pattern
	location string
}

// sourceConfig is everything resolved from one bundle source's defaults
// (launching-properties map, overridden by its own deployment.properties).
type sourceConfig struct {
	dir            string
	locationRoot   string
	searchPattern  *match.Pattern // nil means "use the default literal .jar suffix filter"
	defaults       Settings
	scopedLevels   []scopedLevel
	scopedActions  []scopedAction
	scopedLocation []scopedLocation
}

// resolveSourceConfig merges global launching defaults with a source's own
// deployment.properties (source-specific keys win), and extracts the
// recognized property keys.
func resolveSourceConfig(dir string, launching, local props.Properties) sourceConfig {
	merged := launching.Clone()
	for k, v := range local {
		merged[k] = v
	}

	cfg := sourceConfig{dir: dir}

	cfg.locationRoot = resolveLocationRoot(dir, merged["bundle.location.root"])

	if search, ok := merged["deployment.search"]; ok && search != "" {
		cfg.searchPattern = match.Compile(search)
	}

	// Absent an explicit deployment.action, a discovered bundle is staged
	// for install-or-update: this is what lets a bare `deploy <src>
	// <instance>` stage bundles with no deployment.properties at all.
	cfg.defaults.Actions = ActionSet(Install) | ActionSet(Update)
	if raw, ok := merged["deployment.action"]; ok {
		cfg.defaults.Actions = parseActionSet(raw)
	}

	if raw, ok := merged["start.level"]; ok {
		if n, ok2 := parseIntSafe(raw); ok2 {
			if autostart, level, changed := parseStartLevel(n); changed {
				cfg.defaults.Autostart = autostart
				cfg.defaults.StartLevel = level
			}
		}
	}

	const levelPrefix = "start.level@"
	const actionPrefix = "deployment.action@"
	const locationPrefix = "bundle.location@"

	for k, v := range merged {
		switch {
		case strings.HasPrefix(k, levelPrefix):
			if n, ok := parseIntSafe(v); ok {
				cfg.scopedLevels = append(cfg.scopedLevels, scopedLevel{
					pattern: match.Compile(strings.TrimPrefix(k, levelPrefix)),
					raw:     n,
				})
			}
		case strings.HasPrefix(k, actionPrefix):
			cfg.scopedActions = append(cfg.scopedActions, scopedAction{
				pattern: match.Compile(strings.TrimPrefix(k, actionPrefix)),
				set:     parseActionSet(v),
			})
		case strings.HasPrefix(k, locationPrefix):
			cfg.scopedLocation = append(cfg.scopedLocation, scopedLocation{
				pattern:  match.Compile(strings.TrimPrefix(k, locationPrefix)),
				location: v,
			})
		}
	}

	return cfg
}

func parseIntSafe(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// resolveLocationRoot derives the URI prefix for bundle locations: a
// bundle.location.root ending in ':' or '/' is used verbatim, any other
// value gets a trailing '/', and an empty value falls back to a file: URI
// of the source directory.
func resolveLocationRoot(dir, root string) string {
	if root == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		return "file:" + filepath.ToSlash(abs) + "/"
	}
	if strings.HasSuffix(root, ":") || strings.HasSuffix(root, "/") {
		return root
	}
	return root + "/"
}

// matchesSearch reports whether relPath should be treated as a bundle file
// under cfg's search filter.
func (c sourceConfig) matchesSearch(relPath string) bool {
	if c.searchPattern != nil {
		return c.searchPattern.Match(relPath)
	}
	return strings.HasSuffix(relPath, ".jar")
}

// resolveOverrides applies the best-rank scoped override for each category
// independently to the inherited defaults, returning the bundle's final
// settings. warn is invoked (with a human-readable message) whenever a
// category is ambiguous for relPath; an ambiguous category simply
// contributes no override, it does not fail the build.
func (c sourceConfig) resolveOverrides(relPath string, warn func(string)) Settings {
	s := c.defaults

	if best := bestLevel(c.scopedLevels, relPath); len(best) == 1 {
		if autostart, level, changed := parseStartLevel(best[0].raw); changed {
			s.Autostart = autostart
			s.StartLevel = level
		}
	} else if len(best) > 1 {
		warn("ambiguous start.level override for " + relPath)
	}

	if best := bestAction(c.scopedActions, relPath); len(best) == 1 {
		s.Actions = best[0].set
	} else if len(best) > 1 {
		warn("ambiguous deployment.action override for " + relPath)
	}

	return s
}

func bestLevel(rules []scopedLevel, relPath string) []scopedLevel {
	patterns := make([]*match.Pattern, len(rules))
	for i, r := range rules {
		patterns[i] = r.pattern
	}
	best := match.Best(patterns, relPath)
	return filterLevel(rules, best)
}

func filterLevel(rules []scopedLevel, best []*match.Pattern) []scopedLevel {
	var out []scopedLevel
	for _, b := range best {
		for _, r := range rules {
			if r.pattern == b {
				out = append(out, r)
			}
		}
	}
	return out
}

func bestAction(rules []scopedAction, relPath string) []scopedAction {
	patterns := make([]*match.Pattern, len(rules))
	for i, r := range rules {
		patterns[i] = r.pattern
	}
	best := match.Best(patterns, relPath)
	var out []scopedAction
	for _, b := range best {
		for _, r := range rules {
			if r.pattern == b {
				out = append(out, r)
			}
		}
	}
	return out
}

func bestLocation(rules []scopedLocation, relPath string) []scopedLocation {
	patterns := make([]*match.Pattern, len(rules))
	for i, r := range rules {
		patterns[i] = r.pattern
	}
	best := match.Best(patterns, relPath)
	var out []scopedLocation
	for _, b := range best {
		for _, r := range rules {
			if r.pattern == b {
				out = append(out, r)
			}
		}
	}
	return out
}
