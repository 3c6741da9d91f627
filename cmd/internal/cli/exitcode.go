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
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/apptainer/modlauncher/pkg/cmdline"
)

// exitCodeFor maps a top-level command error to the process exit code:
// 2 for malformed CLI tokens, 3 for semantically invalid
// configuration, and whatever launchererr.Kind carries for everything
// else (1 for an error of no recognized kind at all).
func exitCodeFor(err error) int {
	switch err.(type) {
	case cmdline.FlagError:
		return 2
	case cmdline.CommandError:
		return 2
	}
	return launchererr.ExitCode(err)
}
