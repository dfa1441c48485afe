// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/metrics.go
// Summary: Per-client dispatch counters reported when a client disconnects.

package server

import (
	"log"

	"github.com/framegrace/texelway/registry"
)

// DispatchStats summarises one client's session.
type DispatchStats struct {
	Client   registry.ClientID
	Messages uint64
	Misses   uint64
	Failures uint64
	Objects  int
}

// DispatchStatsObserver receives stats as clients disconnect.
type DispatchStatsObserver interface {
	ObserveDispatch(stats DispatchStats)
}

// DispatchStatsLogger logs dispatch stats.
type DispatchStatsLogger struct {
	logger *log.Logger
}

// NewDispatchStatsLogger returns an observer that logs per-client counters.
func NewDispatchStatsLogger(l *log.Logger) *DispatchStatsLogger {
	if l == nil {
		l = log.Default()
	}
	return &DispatchStatsLogger{logger: l}
}

func (d *DispatchStatsLogger) ObserveDispatch(stats DispatchStats) {
	if d == nil || d.logger == nil {
		return
	}
	d.logger.Printf("dispatch client=%d messages=%d misses=%d failures=%d objects=%d",
		stats.Client, stats.Messages, stats.Misses, stats.Failures, stats.Objects)
}
