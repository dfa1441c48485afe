// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/seat.go
// Summary: Pointer and keyboard focus state machine and the wl_seat family of objects.
// Usage: The compositor feeds backend input events to Motion, Button and Key.
// Notes: Every enter, leave, button, key and modifiers event carries a fresh serial.

package compositor

import (
	"math"

	"github.com/framegrace/texelway/backend"
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// Seat routes input to clients.
type Seat struct {
	comp        *Compositor
	name        string
	sensitivity float64
	x, y        float64

	pointerFocus  *Surface
	keyboardFocus *Surface
	active        *Surface
	grab          *Surface
	pressed       map[uint32]bool
	lastPress     uint32
	// framed lists clients that got pointer events since the last frame.
	framed []registry.ClientID

	pointers    map[registry.ClientID][]registry.Resource
	keyboards   map[registry.ClientID][]registry.Resource
	repeatRate  int32
	repeatDelay int32
	observer    FocusObserver
}

func newSeat(c *Compositor, opts Options) *Seat {
	return &Seat{
		comp:        c,
		name:        opts.SeatName,
		sensitivity: opts.Sensitivity,
		pressed:     make(map[uint32]bool),
		pointers:    make(map[registry.ClientID][]registry.Resource),
		keyboards:   make(map[registry.ClientID][]registry.Resource),
		repeatRate:  opts.RepeatRate,
		repeatDelay: opts.RepeatDelay,
		observer:    opts.Focus,
	}
}

// Position is the absolute pointer position.
func (s *Seat) Position() (float64, float64) { return s.x, s.y }

// Warp places the pointer without generating events.
func (s *Seat) Warp(x, y float64) { s.x, s.y = s.clamp(x, y) }

func (s *Seat) PointerFocus() *Surface  { return s.pointerFocus }
func (s *Seat) KeyboardFocus() *Surface { return s.keyboardFocus }
func (s *Seat) Active() *Surface        { return s.active }

// Grabbing reports the surface being moved, or nil.
func (s *Seat) Grabbing() *Surface { return s.grab }

func (s *Seat) clamp(x, y float64) (float64, float64) {
	b := s.comp.output.Bounds()
	x = math.Max(float64(b.X), math.Min(x, float64(b.X+b.Width-1)))
	y = math.Max(float64(b.Y), math.Min(y, float64(b.Y+b.Height-1)))
	return x, y
}

func (s *Seat) point() Point {
	return Point{int(math.Round(s.x)), int(math.Round(s.y))}
}

func (s *Seat) next() uint32 { return s.comp.srv.Serials().Next() }

func (s *Seat) send(list []registry.Resource, opcode uint16, args ...protocol.Arg) {
	for _, res := range list {
		if err := s.comp.srv.SendEvent(res, opcode, args...); err != nil {
			debugLog.Printf("compositor: seat event to %s: %v", res, err)
		}
	}
}

func (s *Seat) sendPointer(client registry.ClientID, opcode uint16, args ...protocol.Arg) {
	s.send(s.pointers[client], opcode, args...)
	for _, c := range s.framed {
		if c == client {
			return
		}
	}
	s.framed = append(s.framed, client)
}

// endFrame closes the current group of pointer events with wl_pointer.frame.
// Pointers bound below version 5 skip it.
func (s *Seat) endFrame() {
	for _, client := range s.framed {
		s.send(s.pointers[client], 5)
	}
	s.framed = s.framed[:0]
}

// Motion moves the pointer by the unaccelerated delta times sensitivity.
// During a move grab the grabbed window follows the raw delta instead of
// focus being recomputed.
func (s *Seat) Motion(ev backend.PointerMotion) {
	s.x, s.y = s.clamp(s.x+ev.DXUnaccel*s.sensitivity, s.y+ev.DYUnaccel*s.sensitivity)
	if s.grab != nil {
		if n := s.comp.wm.Find(s.grab); n != nil {
			n.Position = n.Position.Add(Point{int(math.Round(ev.DX)), int(math.Round(ev.DY))})
		}
		return
	}
	s.updatePointerFocus(ev.Time, true)
	s.endFrame()
}

func (s *Seat) updatePointerFocus(time uint32, motion bool) {
	node := s.comp.wm.WindowUnderPoint(s.point())
	if node == nil {
		s.setPointerFocus(nil, 0, 0)
		return
	}
	origin := node.SurfaceOrigin()
	lx, ly := s.x-float64(origin.X), s.y-float64(origin.Y)
	s.setPointerFocus(node.Surface, lx, ly)
	if motion {
		s.sendPointer(node.Surface.res.Client, 2,
			protocol.UintArg(time), protocol.FixedArg(protocol.FixedFromFloat(lx)), protocol.FixedArg(protocol.FixedFromFloat(ly)))
	}
}

func (s *Seat) setPointerFocus(surface *Surface, lx, ly float64) {
	old := s.pointerFocus
	if old == surface {
		return
	}
	if old != nil {
		s.sendPointer(old.res.Client, 1, protocol.UintArg(s.next()), protocol.ObjectArg(old.res.ID))
	}
	s.pointerFocus = surface
	if surface != nil {
		s.sendPointer(surface.res.Client, 0, protocol.UintArg(s.next()), protocol.ObjectArg(surface.res.ID),
			protocol.FixedArg(protocol.FixedFromFloat(lx)), protocol.FixedArg(protocol.FixedFromFloat(ly)))
	}
}

// Button handles a press or release. A press raises, focuses and activates
// the window under the pointer, or clears focus over empty space.
func (s *Seat) Button(ev backend.PointerButton) {
	if ev.Pressed {
		s.pressed[ev.Button] = true
		if node := s.comp.wm.WindowUnderPoint(s.point()); node != nil {
			s.comp.wm.Raise(node.Surface)
			s.setKeyboardFocus(node.Surface)
			s.setActive(node.Surface)
		} else {
			s.setKeyboardFocus(nil)
			s.setActive(nil)
		}
	} else {
		delete(s.pressed, ev.Button)
		if ev.Button == backend.BtnLeft && s.grab != nil {
			s.grab = nil
			s.updatePointerFocus(ev.Time, false)
		}
	}

	defer s.endFrame()
	focus := s.pointerFocus
	if focus == nil {
		return
	}
	serial := s.next()
	state := protocol.ButtonStateReleased
	if ev.Pressed {
		state = protocol.ButtonStatePressed
		s.lastPress = serial
	}
	s.sendPointer(focus.res.Client, 3,
		protocol.UintArg(serial), protocol.UintArg(ev.Time), protocol.UintArg(ev.Button), protocol.UintArg(state))
}

// startMove begins an interactive move when serial belongs to the latest
// button press and surface holds pointer focus.
func (s *Seat) startMove(surface *Surface, serial uint32) {
	if serial == 0 || serial != s.lastPress || s.pointerFocus != surface || len(s.pressed) == 0 {
		debugLog.Printf("compositor: move of %s refused serial=%d last=%d", surface.res, serial, s.lastPress)
		return
	}
	s.grab = surface
	s.comp.wm.Raise(surface)
}

func (s *Seat) setKeyboardFocus(surface *Surface) {
	old := s.keyboardFocus
	if old == surface {
		return
	}
	if old != nil && !old.destroyed {
		s.send(s.keyboards[old.res.Client], 2, protocol.UintArg(s.next()), protocol.ObjectArg(old.res.ID))
	}
	s.keyboardFocus = surface
	s.comp.wm.FocusSurface(surface)
	if surface != nil {
		s.enterKeyboard(s.keyboards[surface.res.Client], surface)
	}
	if s.observer != nil {
		var res registry.Resource
		if surface != nil {
			res = surface.res
		}
		s.observer.KeyboardFocused(res)
	}
}

func (s *Seat) enterKeyboard(keyboards []registry.Resource, surface *Surface) {
	if len(keyboards) == 0 {
		return
	}
	s.send(keyboards, 1, protocol.UintArg(s.next()), protocol.ObjectArg(surface.res.ID), protocol.ArrayArg(nil))
	s.sendModifiers(keyboards)
}

func (s *Seat) sendModifiers(keyboards []registry.Resource) {
	m := s.comp.keymap.Modifiers()
	s.send(keyboards, 4, protocol.UintArg(s.next()),
		protocol.UintArg(m.Depressed), protocol.UintArg(m.Latched), protocol.UintArg(m.Locked), protocol.UintArg(m.Group))
}

func (s *Seat) setActive(surface *Surface) {
	if s.active == surface {
		return
	}
	if old := s.active; old != nil && old.role != nil {
		old.role.SetActive(false)
	}
	s.active = surface
	if surface != nil && surface.role != nil {
		surface.role.SetActive(true)
	}
}

// Key updates modifier state and forwards the key to the keyboard focus.
func (s *Seat) Key(ev backend.KeyPress) {
	changed := s.comp.keymap.UpdateKey(ev.Keycode, ev.Pressed)
	focus := s.keyboardFocus
	if focus == nil {
		return
	}
	keyboards := s.keyboards[focus.res.Client]
	if changed {
		s.sendModifiers(keyboards)
	}
	state := protocol.KeyStateReleased
	if ev.Pressed {
		state = protocol.KeyStatePressed
	}
	s.send(keyboards, 3, protocol.UintArg(s.next()), protocol.UintArg(ev.Time), protocol.UintArg(ev.Keycode), protocol.UintArg(state))
}

// forget drops every reference to surface. Leave events are only sent while
// the surface object still exists.
func (s *Seat) forget(surface *Surface, notify bool) {
	if s.grab == surface {
		s.grab = nil
	}
	if s.active == surface {
		s.active = nil
	}
	if s.pointerFocus == surface {
		if notify {
			s.setPointerFocus(nil, 0, 0)
			s.endFrame()
		} else {
			s.pointerFocus = nil
		}
	}
	if s.keyboardFocus == surface {
		if notify {
			s.setKeyboardFocus(nil)
		} else {
			s.keyboardFocus = nil
			s.comp.wm.FocusSurface(nil)
			if s.observer != nil {
				s.observer.KeyboardFocused(registry.Resource{})
			}
		}
	}
}

func (s *Seat) surfaceUnmapped(surface *Surface) { s.forget(surface, true) }

func removeResource(list []registry.Resource, res registry.Resource) []registry.Resource {
	out := list[:0]
	for _, r := range list {
		if r != res {
			out = append(out, r)
		}
	}
	return out
}

func bindSeat(c *Compositor) server.BindFunc {
	return func(srv *server.Server, res registry.Resource) error {
		caps := protocol.SeatCapabilityPointer | protocol.SeatCapabilityKeyboard
		if err := srv.SendEvent(res, 0, protocol.UintArg(caps)); err != nil {
			return err
		}
		return srv.SendEvent(res, 1, protocol.StringArg(c.seat.name))
	}
}

func handleSeat(c *Compositor) server.HandlerFunc {
	return func(srv *server.Server, req server.Request) error {
		if req.Opcode > 2 {
			return nil
		}
		res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
		if !ok {
			return nil
		}
		s := c.seat
		switch req.Opcode {
		case 0:
			s.pointers[res.Client] = append(s.pointers[res.Client], res)
			return c.reg.SetDestructor(res, func(r registry.Resource) {
				s.pointers[r.Client] = removeResource(s.pointers[r.Client], r)
			})
		case 1:
			s.keyboards[res.Client] = append(s.keyboards[res.Client], res)
			if err := c.reg.SetDestructor(res, func(r registry.Resource) {
				s.keyboards[r.Client] = removeResource(s.keyboards[r.Client], r)
			}); err != nil {
				return err
			}
			return s.initKeyboard(res)
		}
		return nil
	}
}

func (s *Seat) initKeyboard(res registry.Resource) error {
	fd, size, err := s.comp.keymap.KeymapFile()
	if err != nil {
		return err
	}
	srv := s.comp.srv
	if err := srv.SendEvent(res, 0, protocol.UintArg(protocol.KeymapFormatXKBV1), protocol.FDArg(fd), protocol.UintArg(size)); err != nil {
		return err
	}
	if err := srv.SendEvent(res, 5, protocol.IntArg(s.repeatRate), protocol.IntArg(s.repeatDelay)); err != nil {
		return err
	}
	if focus := s.keyboardFocus; focus != nil && focus.res.Client == res.Client {
		s.enterKeyboard([]registry.Resource{res}, focus)
	}
	return nil
}

func handlePointer(srv *server.Server, req server.Request) error {
	if req.Opcode == 0 {
		debugLog.Printf("compositor: client %d set_cursor serial=%d surface=%d ignored", req.Client(), req.Uint(0), req.ObjectID(1))
	}
	return nil
}
