// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/metrics.go
// Summary: Keyboard focus observer that logs focus changes.
// Usage: cmd/texelway attaches FocusMetrics when verbose logging is on.

package compositor

import (
	"log"
	"sync"
	"time"

	"github.com/framegrace/texelway/registry"
)

// FocusObserver is told about every keyboard focus change. A zero resource
// means focus was cleared.
type FocusObserver interface {
	KeyboardFocused(surface registry.Resource)
}

type FocusMetrics struct {
	mu         sync.Mutex
	last       registry.Resource
	changes    uint64
	lastChange time.Time
	logger     *log.Logger
}

type FocusStats struct {
	LastSurface registry.Resource
	Changes     uint64
	LastChange  time.Time
}

func NewFocusMetrics(logger *log.Logger) *FocusMetrics {
	if logger == nil {
		logger = log.Default()
	}
	return &FocusMetrics{logger: logger}
}

func (f *FocusMetrics) KeyboardFocused(surface registry.Resource) {
	f.mu.Lock()
	f.last = surface
	f.changes++
	f.lastChange = time.Now()
	changes := f.changes
	f.mu.Unlock()

	f.logger.Printf("metric focus client=%d surface=%d changes=%d", surface.Client, surface.ID, changes)
}

func (f *FocusMetrics) Snapshot() FocusStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FocusStats{LastSurface: f.last, Changes: f.changes, LastChange: f.lastChange}
}

var _ FocusObserver = (*FocusMetrics)(nil)
