// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/region.go
// Summary: wl_region as an ordered list of added and subtracted rectangles.

package compositor

import (
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

type regionOp struct {
	rect Rect
	add  bool
}

// Region is a set of points built from rectangle unions and differences.
type Region struct {
	ops []regionOp
}

func (r *Region) Add(rect Rect)      { r.ops = append(r.ops, regionOp{rect, true}) }
func (r *Region) Subtract(rect Rect) { r.ops = append(r.ops, regionOp{rect, false}) }

// Contains replays the operations; the last rectangle covering p decides.
// A nil region is infinite.
func (r *Region) Contains(p Point) bool {
	if r == nil {
		return true
	}
	inside := false
	for _, op := range r.ops {
		if op.rect.Contains(p) {
			inside = op.add
		}
	}
	return inside
}

// Clone snapshots r so later edits to the wl_region do not leak into
// surface state.
func (r *Region) Clone() *Region {
	if r == nil {
		return nil
	}
	return &Region{ops: append([]regionOp(nil), r.ops...)}
}

func (c *Compositor) newRegion(res registry.Resource) error {
	return c.reg.SetData(res, &Region{})
}

func handleRegion(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		region, err := registry.As[*Region](c.reg, req.Resource, protocol.WlRegion)
		if err != nil {
			return err
		}
		switch req.Opcode {
		case 1:
			region.Add(requestRect(req))
		case 2:
			region.Subtract(requestRect(req))
		}
		return nil
	}
}

func requestRect(req server.Request) Rect {
	return Rect{int(req.Int(0)), int(req.Int(1)), int(req.Int(2)), int(req.Int(3))}
}
