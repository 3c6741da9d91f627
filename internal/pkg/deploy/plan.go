// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package deploy

import "sort"

// Plan is the deterministic, ordered list of bundle deployments computed
// by Build, plus nothing else — once returned it is immutable by
// convention (callers must not mutate Bundles in place; the plan is handed
// to the container runtime and then discarded).
type Plan struct {
	Bundles []Bundle
}

// actionSetRank orders action sets: pure UNINSTALL precedes
// mixed action sets, which precede pure INSTALL. A pure UPDATE (or any
// other combination) is treated as "mixed" for ordering purposes.
func actionSetRank(s ActionSet) int {
	switch s {
	case ActionSet(Uninstall):
		return 0
	case ActionSet(Install):
		return 2
	default:
		return 1
	}
}

// autostartRank orders autostart intents: unspecified sorts last, otherwise
// STOPPED before STARTED.
func autostartRank(a Autostart) int {
	switch a {
	case AutostartStopped:
		return 0
	case AutostartStarted:
		return 1
	default:
		return 2
	}
}

// levelSortKey sorts start levels descending among non-zero values. A
// signed 64-bit key is simply the negated level, with zero (no change)
// mapped to the maximum key so it sorts after every real level.
func levelSortKey(level int) int64 {
	if level == 0 {
		return int64(^uint64(0) >> 1) // math.MaxInt64, sorts last
	}
	return -int64(level)
}

// sortBundles orders bundles by a composite key:
// action-set rank, autostart, start level, then location, each ascending.
func sortBundles(bundles []*Bundle) {
	sort.SliceStable(bundles, func(i, j int) bool {
		a, b := bundles[i], bundles[j]

		if ra, rb := actionSetRank(a.Actions), actionSetRank(b.Actions); ra != rb {
			return ra < rb
		}
		if ra, rb := autostartRank(a.Autostart), autostartRank(b.Autostart); ra != rb {
			return ra < rb
		}
		if ka, kb := levelSortKey(a.StartLevel), levelSortKey(b.StartLevel); ka != kb {
			return ka < kb
		}
		return a.Location < b.Location
	})
}
