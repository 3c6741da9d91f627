// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cancel implements a single-registration, single-fire cancel
// hook: a handler registered exactly once fires exactly
// once, whether triggered by an OS shutdown signal or a peer "stop"
// datagram, and a Cancel that races ahead of Register is remembered so the
// caller can skip the long-running phase entirely.
package cancel

import "sync"

// Hook guards a single handler against concurrent Cancel calls from the
// command-channel receive goroutine and the shutdown-signal goroutine.
type Hook struct {
	mu        sync.Mutex
	handler   func()
	cancelled bool
	fired     bool
}

// Register attaches fn as the handler Cancel invokes. It returns true if
// Cancel already fired before this call, in which case fn is discarded and
// the caller should treat the operation as already cancelled rather than
// entering its long-running phase.
func (h *Hook) Register(fn func()) (alreadyCancelled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return true
	}
	h.handler = fn
	return false
}

// Cancel invokes the registered handler exactly once. Safe to call from
// multiple goroutines and before Register has run.
func (h *Hook) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	if h.fired || h.handler == nil {
		h.mu.Unlock()
		return
	}
	h.fired = true
	handler := h.handler
	h.mu.Unlock()

	handler()
}
