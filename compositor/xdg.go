// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/xdg.go
// Summary: xdg-shell: wm_base, positioners, xdg_surface and the toplevel window role.
// Usage: Toplevels enter the window stack when created and map on their first buffer commit.
// Notes: Popups are accepted on the wire but not served.

package compositor

import (
	"encoding/binary"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

type xdgSurface struct {
	comp            *Compositor
	res             registry.Resource
	surface         *Surface
	toplevel        *Toplevel
	pendingGeometry *Rect
	geometry        *Rect
	lastConfigure   uint32
	acked           uint32
}

// Toplevel is the xdg_toplevel role.
type Toplevel struct {
	xs       *xdgSurface
	res      registry.Resource
	title    string
	appID    string
	active   bool
	detached bool
}

func (t *Toplevel) Name() string  { return "xdg_toplevel" }
func (t *Toplevel) Title() string { return t.title }

// AppID is the application identifier the client announced.
func (t *Toplevel) AppID() string { return t.appID }

// Active reports whether the window is shown as activated.
func (t *Toplevel) Active() bool { return t.active }

func (t *Toplevel) Commit() {
	if g := t.xs.pendingGeometry; g != nil {
		t.xs.geometry = g
		t.xs.pendingGeometry = nil
	}
}

func (t *Toplevel) SolidGeometry() (Rect, bool) {
	if t.xs.geometry == nil {
		return Rect{}, false
	}
	return *t.xs.geometry, true
}

func (t *Toplevel) SetActive(active bool) {
	if t.active == active || t.detached {
		return
	}
	t.active = active
	t.sendConfigure()
}

func (t *Toplevel) Destroy() { t.detached = true }

func (t *Toplevel) sendConfigure() {
	c := t.xs.comp
	var states []byte
	if t.active {
		states = binary.NativeEndian.AppendUint32(states, protocol.ToplevelStateActivated)
	}
	if err := c.srv.SendEvent(t.res, 0, protocol.IntArg(0), protocol.IntArg(0), protocol.ArrayArg(states)); err != nil {
		debugLog.Printf("compositor: toplevel configure: %v", err)
		return
	}
	serial := c.srv.Serials().Next()
	t.xs.lastConfigure = serial
	if err := c.srv.SendEvent(t.xs.res, 0, protocol.UintArg(serial)); err != nil {
		debugLog.Printf("compositor: xdg_surface configure: %v", err)
	}
}

func (t *Toplevel) destroyed(registry.Resource) {
	if !t.detached {
		t.detached = true
		t.xs.surface.clearRole(t)
	}
	if t.xs.toplevel == t {
		t.xs.toplevel = nil
	}
}

func handleWmBase(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		switch req.Opcode {
		case 1: // create_positioner
			debugLog.Printf("compositor: client %d created positioner %d", req.Client(), req.ObjectID(0))
		case 2:
			return c.getXdgSurface(req)
		case 3:
			debugLog.Printf("compositor: client %d pong %d", req.Client(), req.Uint(0))
		}
		return nil
	}
}

func (c *Compositor) getXdgSurface(req server.Request) error {
	res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
	if !ok {
		return nil
	}
	sres, ok := c.reg.Lookup(req.Client(), req.ObjectID(1))
	if !ok {
		return server.NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "unknown surface %d", req.ObjectID(1))
	}
	surface, err := registry.As[*Surface](c.reg, sres, protocol.WlSurface)
	if err != nil {
		return err
	}
	if surface.role != nil || surface.xdg != nil {
		return server.NewProtocolError(req.Resource, protocol.WmBaseErrorRole, "surface %d already has a role", sres.ID)
	}
	if surface.committed.buffer != nil {
		return server.NewProtocolError(req.Resource, protocol.WmBaseErrorInvalidSurfaceState, "surface %d already has a buffer", sres.ID)
	}
	xs := &xdgSurface{comp: c, res: res, surface: surface}
	surface.xdg = xs
	if err := c.reg.SetData(res, xs); err != nil {
		return err
	}
	return c.reg.SetDestructor(res, func(registry.Resource) {
		if xs.toplevel != nil {
			debugLog.Printf("compositor: %s destroyed before its toplevel", res)
		}
		if surface.xdg == xs {
			surface.xdg = nil
		}
	})
}

func handlePositioner(s *server.Server, req server.Request) error {
	debugLog.Printf("compositor: positioner %d %s ignored", req.Resource.ID, req.Spec.Name)
	return nil
}

func handleXdgSurface(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		xs, err := registry.As[*xdgSurface](c.reg, req.Resource, protocol.XdgSurface)
		if err != nil {
			return err
		}
		switch req.Opcode {
		case 1:
			return c.getToplevel(xs, req)
		case 2:
			debugLog.Printf("compositor: popup %d on %s is not supported", req.ObjectID(0), req.Resource)
		case 3: // set_window_geometry
			g := requestRect(req)
			if g.Empty() {
				return server.NewProtocolError(req.Resource, protocol.XdgSurfaceErrorInvalidSize, "window geometry %s", g)
			}
			xs.pendingGeometry = &g
		case 4: // ack_configure
			serial := req.Uint(0)
			if serial == 0 || serial > xs.lastConfigure {
				return server.NewProtocolError(req.Resource, protocol.XdgSurfaceErrorInvalidSerial, "ack of unknown serial %d", serial)
			}
			xs.acked = serial
		}
		return nil
	}
}

func (c *Compositor) getToplevel(xs *xdgSurface, req server.Request) error {
	res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
	if !ok {
		return nil
	}
	if xs.toplevel != nil {
		return server.NewProtocolError(req.Resource, protocol.XdgSurfaceErrorAlreadyConstructed, "%s already has a toplevel", req.Resource)
	}
	t := &Toplevel{xs: xs, res: res}
	if err := xs.surface.assignRole(t); err != nil {
		return server.NewProtocolError(req.Resource, protocol.XdgSurfaceErrorAlreadyConstructed, "%v", err)
	}
	xs.toplevel = t
	if err := c.reg.SetData(res, t); err != nil {
		return err
	}
	if err := c.reg.SetDestructor(res, t.destroyed); err != nil {
		return err
	}
	c.wm.AddSurface(xs.surface)
	t.sendConfigure()
	return nil
}

func handleToplevel(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		t, err := registry.As[*Toplevel](c.reg, req.Resource, protocol.XdgToplevel)
		if err != nil {
			return err
		}
		if t.detached && req.Opcode != 0 {
			return nil
		}
		switch req.Opcode {
		case 2:
			t.title = req.String(0)
		case 3:
			t.appID = req.String(0)
		case 5: // move
			c.seat.startMove(t.xs.surface, req.Uint(1))
		case 0:
		default:
			debugLog.Printf("compositor: %s.%s ignored", req.Resource, req.Spec.Name)
		}
		return nil
	}
}
