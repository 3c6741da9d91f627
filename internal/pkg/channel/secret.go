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
	"github.com/apptainer/modlauncher/internal/pkg/launchererr"
	"github.com/google/uuid"
)

// validSecret reports whether every rune of s lies in [0x20, 0x80].
func validSecret(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 0x20 || r > 0x80 {
			return false
		}
	}
	return true
}

// resolveSecret returns secret unchanged if it passes validSecret, generates
// a fresh random UUID-shaped token if secret is empty, or fails with
// ConfigError for a non-empty, invalid secret.
func resolveSecret(secret string) (string, error) {
	if secret == "" {
		return uuid.NewString(), nil
	}
	if !validSecret(secret) {
		return "", launchererr.Newf(launchererr.ConfigError, "secret contains characters outside [0x20, 0x80]")
	}
	return secret, nil
}
