// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package channel

import (
	"fmt"
	"os"
	"strings"

	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
)

// Link is the three-line (host, port, secret) contents of an instance.link
// file.
type Link struct {
	Host   string
	Port   string
	Secret string
}

// WriteLink writes link to path, truncating any existing file. Called only
// after the server socket is bound, so the port recorded is always the
// resolved one.
func WriteLink(path string, link Link) error {
	content := fmt.Sprintf("%s\n%s\n%s\n", link.Host, link.Port, link.Secret)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return launchererr.New(launchererr.InstanceIO, err)
	}
	return nil
}

// ReadLink parses path's three lines into a Link.
func ReadLink(path string) (Link, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Link{}, launchererr.New(launchererr.InstanceIO, err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 3 {
		return Link{}, launchererr.Newf(launchererr.ConfigError, "malformed link file %s: expected 3 lines, got %d", path, len(lines))
	}
	return Link{Host: lines[0], Port: lines[1], Secret: lines[2]}, nil
}

// DeleteLink removes path if present. Called both before a launch attempt
// (to avoid exposing stale data if the bind then fails) and when the server
// closes; absence is not an error.
func DeleteLink(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return launchererr.New(launchererr.InstanceIO, err)
	}
	return nil
}
