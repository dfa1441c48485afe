// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: registry/globals.go
// Summary: Global capability table advertised through wl_registry.
// Notes: Globals are fixed after setup; names start at 1 in registration order.

package registry

import (
	"fmt"
	"io"
	"log"

	"github.com/framegrace/texelway/protocol"
)

var debugLog = log.New(io.Discard, "", log.LstdFlags)

// SetVerboseLogging toggles registry debug output.
func SetVerboseLogging(enabled bool) {
	if enabled {
		debugLog.SetOutput(log.Writer())
		return
	}
	debugLog.SetOutput(io.Discard)
}

// Global is an advertised capability a client may bind.
type Global struct {
	Name      uint32
	Interface protocol.InterfaceID
	Version   uint32
}

// AddGlobal advertises iface at version. Registering the same interface twice
// is a setup error.
func (r *Registry) AddGlobal(iface protocol.InterfaceID, version uint32) (Global, error) {
	if iface.Interface() == nil {
		return Global{}, fmt.Errorf("registry: cannot advertise %s", iface)
	}
	for _, g := range r.globals {
		if g.Interface == iface {
			return Global{}, fmt.Errorf("%w: %s", ErrGlobalConflict, iface)
		}
	}
	if limit := iface.Interface().Version; version == 0 || version > limit {
		version = limit
	}
	g := Global{Name: uint32(len(r.globals) + 1), Interface: iface, Version: version}
	r.globals = append(r.globals, g)
	debugLog.Printf("registry: global name=%d interface=%s version=%d", g.Name, iface, version)
	return g, nil
}

// Globals returns the advertised globals in name order.
func (r *Registry) Globals() []Global {
	out := make([]Global, len(r.globals))
	copy(out, r.globals)
	return out
}

// FindGlobal returns the first global accepted by match.
func (r *Registry) FindGlobal(match func(Global) bool) (Global, bool) {
	for _, g := range r.globals {
		if match(g) {
			return g, true
		}
	}
	return Global{}, false
}

// GlobalByName resolves a name sent in wl_registry.bind.
func (r *Registry) GlobalByName(name uint32) (Global, bool) {
	return r.FindGlobal(func(g Global) bool { return g.Name == name })
}
