// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

// FlagError marks a failure specific to flag parsing/validation, so the
// top-level Execute can print flag usage rather than full command usage.
type FlagError string

func (e FlagError) Error() string { return string(e) }

// CommandError marks a failure in command selection itself (e.g. no verb
// given), so the top-level Execute prints the command's usage string.
type CommandError string

func (e CommandError) Error() string { return string(e) }
