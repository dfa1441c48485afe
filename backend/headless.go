// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/headless.go
// Summary: Input backend fed programmatically, for tests and display-less runs.

package backend

import (
	"errors"
	"sync"
)

// ErrInputClosed is returned when injecting into a closed backend.
var ErrInputClosed = errors.New("backend: input closed")

// Headless queues injected events for the event loop.
type Headless struct {
	mu     sync.Mutex
	events chan InputEvent
	closed bool
}

// NewHeadless creates a backend whose queue holds up to capacity events.
func NewHeadless(capacity int) *Headless {
	if capacity <= 0 {
		capacity = 256
	}
	return &Headless{events: make(chan InputEvent, capacity)}
}

// Inject queues ev without blocking. A full queue drops the event.
func (h *Headless) Inject(ev InputEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrInputClosed
	}
	select {
	case h.events <- ev:
		return nil
	default:
		debugLog.Printf("backend: headless queue full, dropping %T", ev)
		return nil
	}
}

func (h *Headless) Events() <-chan InputEvent { return h.events }

func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	return nil
}
