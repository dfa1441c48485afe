// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/trace/tracer.go
// Summary: server.Tracer that journals every request and event into a Store.

package trace

import (
	"log"
	"time"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// Tracer adapts a Store to the server's tracing hook.
type Tracer struct {
	store *Store
	now   func() time.Time
}

// NewTracer journals into store.
func NewTracer(store *Store) *Tracer {
	return &Tracer{store: store, now: time.Now}
}

func (t *Tracer) Trace(incoming bool, res registry.Resource, msg *protocol.MessageSpec, args []protocol.Arg) {
	dir := Event
	if incoming {
		dir = Request
	}
	e := Entry{
		Time:      t.now(),
		Direction: dir,
		Client:    uint32(res.Client),
		Object:    res.ID,
		Interface: res.Interface.String(),
		Message:   msg.Name,
		Args:      make([]Arg, len(args)),
	}
	for i, a := range args {
		e.Args[i] = Arg{Kind: a.Kind.String(), Value: a.Format()}
	}
	if err := t.store.Record(e); err != nil {
		log.Printf("trace: %v", err)
	}
}

var _ server.Tracer = (*Tracer)(nil)
