// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/surface.go
// Summary: Double-buffered wl_surface state and its commit protocol.
// Usage: Created by wl_compositor.create_surface; handlers mutate pending state and Commit publishes it.
// Notes: A buffer sits in at most one surface slot; every superseded attachment is released exactly once.

package compositor

import (
	"errors"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// ErrBufferInUse rejects attaching a buffer another surface still holds.
var ErrBufferInUse = errors.New("compositor: buffer is held by another surface")

// SurfaceState is the lifecycle stage of a surface.
type SurfaceState int

const (
	StateUnattached SurfaceState = iota
	StateAttached
	StateMapped
	StateUnmapped
	StateDestroyed
)

func (s SurfaceState) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttached:
		return "attached"
	case StateMapped:
		return "mapped"
	case StateUnmapped:
		return "unmapped"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

type attachment struct {
	buffer *Buffer
	offset Point
}

type pendingState struct {
	attach      *attachment
	inputSet    bool
	inputRegion *Region
}

type committedState struct {
	buffer      *Buffer
	offset      Point
	inputRegion *Region
	size        *Size
}

// Surface is the server side of one wl_surface.
type Surface struct {
	comp      *Compositor
	res       registry.Resource
	pending   pendingState
	committed committedState
	frame     registry.Resource
	role      Role
	roleName  string
	xdg       *xdgSurface
	mapped    bool
	destroyed bool
}

func (c *Compositor) newSurface(res registry.Resource) (*Surface, error) {
	s := &Surface{comp: c, res: res}
	if err := c.reg.SetData(res, s); err != nil {
		return nil, err
	}
	if err := c.reg.SetDestructor(res, func(registry.Resource) { s.Destroy() }); err != nil {
		return nil, err
	}
	c.surfaces = append(c.surfaces, s)
	return s, nil
}

// Resource is the wl_surface handle.
func (s *Surface) Resource() registry.Resource { return s.res }

// Role returns the surface role, or nil.
func (s *Surface) Role() Role { return s.role }

// Size is the committed buffer size; nil means unmapped.
func (s *Surface) Size() *Size {
	if s.committed.size == nil {
		return nil
	}
	size := *s.committed.size
	return &size
}

// InputRegion is the committed input region; nil is infinite.
func (s *Surface) InputRegion() *Region { return s.committed.inputRegion }

// Buffer is the committed buffer, or nil.
func (s *Surface) Buffer() *Buffer { return s.committed.buffer }

func (s *Surface) State() SurfaceState {
	switch {
	case s.destroyed:
		return StateDestroyed
	case s.role != nil && s.committed.size != nil:
		return StateMapped
	case s.role != nil && s.mapped:
		return StateUnmapped
	case s.committed.buffer != nil || (s.pending.attach != nil && s.pending.attach.buffer != nil):
		return StateAttached
	}
	return StateUnattached
}

// Attach sets the pending buffer; nil records a detach. A superseded pending
// buffer goes back to its client straight away. A buffer pending or
// committed on another surface is refused with ErrBufferInUse and leaves
// both surfaces untouched.
func (s *Surface) Attach(buf *Buffer, x, y int) error {
	if s.destroyed {
		return nil
	}
	if buf != nil && buf.surface != nil && buf.surface != s {
		return ErrBufferInUse
	}
	if prev := s.pending.attach; prev != nil && prev.buffer != nil && prev.buffer != buf && prev.buffer != s.committed.buffer {
		s.release(prev.buffer)
	}
	s.pending.attach = &attachment{buffer: buf, offset: Point{x, y}}
	if buf != nil {
		buf.surface = s
	}
	return nil
}

// SetInputRegion stages a copy of region; nil means infinite.
func (s *Surface) SetInputRegion(region *Region) {
	s.pending.inputSet = true
	s.pending.inputRegion = region.Clone()
}

// Commit publishes pending state. The size is recomputed only when a pending
// attachment was applied; a commit without one keeps the committed size, even
// if the client destroyed the committed buffer in between.
func (s *Surface) Commit() {
	if s.destroyed {
		return
	}
	p := s.pending.attach
	if p != nil {
		old := s.committed.buffer
		s.committed.buffer = p.buffer
		s.committed.offset = s.committed.offset.Add(p.offset)
		s.pending.attach = nil
		if old != nil && old != p.buffer {
			s.release(old)
		}
	}
	if s.pending.inputSet {
		s.committed.inputRegion = s.pending.inputRegion
		s.pending.inputSet = false
		s.pending.inputRegion = nil
	}
	if s.role != nil {
		s.role.Commit()
	}
	if p != nil {
		s.updateSize()
		return
	}
	if s.role != nil && s.committed.size != nil {
		// Role state only: refresh the node, possibly mapping a role
		// assigned after the buffer was committed.
		s.mapped = true
		s.comp.wm.Resize(s, *s.committed.size)
	}
}

func (s *Surface) updateSize() {
	old := s.committed.size
	var next *Size
	if b := s.committed.buffer; b != nil {
		next = &Size{int(b.width), int(b.height)}
	}
	s.committed.size = next
	if s.role == nil {
		return
	}
	wm := s.comp.wm
	switch {
	case next == nil && old != nil:
		wm.Unmap(s)
		s.comp.seat.surfaceUnmapped(s)
	case next == nil:
	case old == nil:
		s.mapped = true
		wm.Map(s, *next)
	default:
		s.mapped = true
		wm.Resize(s, *next)
	}
}

// Frame queues a one-shot callback. An older queued callback fires at once.
func (s *Surface) Frame(cb registry.Resource) {
	if s.comp.reg.Alive(s.frame) {
		s.fireFrame(s.comp.now())
	}
	s.frame = cb
}

// FrameDone fires the queued frame callback, if any.
func (s *Surface) FrameDone(ms uint32) {
	if s.comp.reg.Alive(s.frame) {
		s.fireFrame(ms)
	}
	s.frame = registry.Resource{}
}

func (s *Surface) fireFrame(ms uint32) {
	cb := s.frame
	s.frame = registry.Resource{}
	if err := s.comp.srv.SendEvent(cb, 0, protocol.UintArg(ms)); err != nil {
		debugLog.Printf("compositor: frame done %s: %v", cb, err)
	}
	if err := s.comp.srv.DestroyResource(cb); err != nil {
		debugLog.Printf("compositor: destroy callback %s: %v", cb, err)
	}
}

// Destroy releases every buffer the surface holds, drops its role and
// removes it from the window stack and focus.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	if p := s.pending.attach; p != nil && p.buffer != nil && p.buffer != s.committed.buffer {
		s.release(p.buffer)
	}
	s.pending = pendingState{}
	if b := s.committed.buffer; b != nil {
		s.release(b)
	}
	if cb := s.frame; s.comp.reg.Alive(cb) {
		s.frame = registry.Resource{}
		if err := s.comp.srv.DestroyResource(cb); err != nil {
			debugLog.Printf("compositor: destroy callback %s: %v", cb, err)
		}
	}
	s.committed.buffer = nil
	s.committed.size = nil
	if role := s.role; role != nil {
		s.role = nil
		role.Destroy()
	}
	s.destroyed = true
	s.comp.windowGone(s)
	s.comp.forgetSurface(s)
}

// release returns buf to its client. The caller has already removed buf
// from the slot it occupied.
func (s *Surface) release(buf *Buffer) {
	if buf.surface == s {
		buf.surface = nil
	}
	buf.release()
}

// forgetBuffer clears buf from both slots without a release; the client
// already destroyed it. The committed size stays until the next attach.
func (s *Surface) forgetBuffer(buf *Buffer) {
	if p := s.pending.attach; p != nil && p.buffer == buf {
		s.pending.attach = nil
	}
	if s.committed.buffer == buf {
		s.committed.buffer = nil
	}
	if buf.surface == s {
		buf.surface = nil
	}
}

func handleSurface(c *Compositor) server.HandlerFunc {
	return func(srv *server.Server, req server.Request) error {
		s, err := registry.As[*Surface](c.reg, req.Resource, protocol.WlSurface)
		if err != nil {
			return err
		}
		switch req.Opcode {
		case 1: // attach
			var buf *Buffer
			if id := req.ObjectID(0); id != 0 {
				res, ok := c.reg.Lookup(req.Client(), id)
				if !ok {
					return server.NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "unknown buffer %d", id)
				}
				if buf, err = registry.As[*Buffer](c.reg, res, protocol.WlBuffer); err != nil {
					return err
				}
			}
			if err := s.Attach(buf, int(req.Int(1)), int(req.Int(2))); err != nil {
				return server.NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "attach buffer %d: %v", req.ObjectID(0), err)
			}
		case 2, 9: // damage, damage_buffer
		case 3: // frame
			cb, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
			if !ok {
				return nil
			}
			s.Frame(cb)
		case 4: // set_opaque_region
		case 5: // set_input_region
			var region *Region
			if id := req.ObjectID(0); id != 0 {
				res, ok := c.reg.Lookup(req.Client(), id)
				if !ok {
					return server.NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "unknown region %d", id)
				}
				if region, err = registry.As[*Region](c.reg, res, protocol.WlRegion); err != nil {
					return err
				}
			}
			s.SetInputRegion(region)
		case 6:
			s.Commit()
		case 7: // set_buffer_transform
			if t := req.Int(0); t < 0 || t > 7 {
				return server.NewProtocolError(req.Resource, protocol.SurfaceErrorInvalidTransform, "invalid transform %d", t)
			}
		case 8: // set_buffer_scale
			if scale := req.Int(0); scale < 1 {
				return server.NewProtocolError(req.Resource, protocol.SurfaceErrorInvalidScale, "invalid scale %d", scale)
			}
		}
		return nil
	}
}
