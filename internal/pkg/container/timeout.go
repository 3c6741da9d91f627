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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
)

// isoDuration matches the bare "PT#S"-style ISO-8601 duration forms this
// launcher accepts in addition to Go's own <n>{m|s|ms} suffixes: PT5S,
// PT1M, PT1H, PT500MS.
var isoDuration = regexp.MustCompile(`(?i)^PT(\d+(?:\.\d+)?)(H|M|S|MS)$`)

// ParseShutdownTimeout parses the shutdown.timeout property:
// "none"/"null"/empty means wait indefinitely (represented as 0);
// otherwise the value is an ISO-8601 "PT#S"-style duration or a Go-style
// "<n>{m|s|ms}" duration.
func ParseShutdownTimeout(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "", "none", "null":
		return 0, nil
	}

	if m := isoDuration.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, launchererr.New(launchererr.ConfigError, err)
		}
		unit := map[string]time.Duration{
			"H":  time.Hour,
			"M":  time.Minute,
			"S":  time.Second,
			"MS": time.Millisecond,
		}[strings.ToUpper(m[2])]
		return time.Duration(n * float64(unit)), nil
	}

	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, launchererr.New(launchererr.ConfigError, fmt.Errorf("invalid shutdown.timeout %q: %w", raw, err))
	}
	return d, nil
}
