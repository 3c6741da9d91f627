// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cmdline wires Flag declarations onto a cobra command tree,
// supporting environment-variable fallback for any flag the user did not
// set explicitly on the command line.
package cmdline

// Flag describes one command-line flag shared across one or more commands.
// Value must be a pointer to the flag's storage (*string, *bool, *int,
// *uint32, *[]string, or *map[string]string); DefaultValue must hold a
// value of the pointed-to type.
type Flag struct {
	ID           string
	Value        interface{}
	DefaultValue interface{}
	Name         string
	ShortHand    string
	Usage        string
	// EnvKeys, in priority order, are checked by UpdateCmdFlagFromEnv when
	// the flag was not set on the command line.
	EnvKeys []string
	// Deprecated, if non-empty, is the message pflag prints when the flag
	// is used.
	Deprecated string
	Hidden     bool
	Required   bool
	// Tag groups related flags for help-text sectioning; purely advisory.
	Tag string
}
