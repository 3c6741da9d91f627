// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package launchererr defines the launcher's error taxonomy as a sum type,
// so every package returns a plain error (wrapped with %w where a Kind
// applies) and only the top-level command layer converts a Kind to a
// process exit code.
package launchererr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code mapping. BundleOpFailure and
// Cancelled are special: the former is logged and never propagated past a
// single bundle's install/update/uninstall, the latter maps to exit 0.
type Kind int

const (
	// SyntaxError is malformed CLI input. Exit code 2.
	SyntaxError Kind = iota
	// ConfigError is a semantically invalid input. Exit code 3.
	ConfigError
	// InstanceBusy is a contended instance lock. Exit code 4.
	InstanceBusy
	// InstanceIO is a failed on-disk instance operation. Exit code 4.
	InstanceIO
	// BundleOpFailure is a single bundle install/update/uninstall failure.
	// Logged by the container runtime, never returned to the caller.
	BundleOpFailure
	// ContainerFault is a container init/start/stop failure. Exit code 4.
	ContainerFault
	// CryptoUnavailable is a cipher or digest self-test failure. Exit code 3.
	CryptoUnavailable
	// TransportError is a UDP send/recv/bind failure. Exit code 4 (client)
	// or logged via the error sink (server).
	TransportError
	// Cancelled marks an operation aborted before it started running.
	// Exit code 0.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case ConfigError:
		return "ConfigError"
	case InstanceBusy:
		return "InstanceBusy"
	case InstanceIO:
		return "InstanceIO"
	case BundleOpFailure:
		return "BundleOpFailure"
	case ContainerFault:
		return "ContainerFault"
	case CryptoUnavailable:
		return "CryptoUnavailable"
	case TransportError:
		return "TransportError"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ExitCode returns the process exit code associated with k.
func (k Kind) ExitCode() int {
	switch k {
	case SyntaxError:
		return 2
	case ConfigError, CryptoUnavailable:
		return 3
	case InstanceBusy, InstanceIO, ContainerFault, TransportError:
		return 4
	case Cancelled:
		return 0
	default:
		return 1
	}
}

// Error wraps a Kind and an underlying cause.
type Error struct {
	Kind  Kind
	Cause error
}

// New builds an *Error of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Newf builds an *Error of the given kind from a formatted message.
func Newf(kind Kind, format string, a ...interface{}) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, a...)}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns 0 for a nil err, the Kind's exit code when err wraps an
// *Error, and 1 (runtime fault) for any other error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind.ExitCode()
	}
	return 1
}
