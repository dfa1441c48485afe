// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/harness_test.go
// Summary: Test harness that runs a compositor behind socketpair clients.
// Usage: Shared by the compositor package tests.

package compositor

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/framegrace/texelway/backend"
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/server"
	"github.com/framegrace/texelway/server/servertest"
)

// Global names follow registration order in New.
const (
	globalCompositor = 1
	globalShm        = 2
	globalSeat       = 3
	globalOutput     = 4
	globalWmBase     = 5
)

type harness struct {
	t     *testing.T
	srv   *server.Server
	comp  *Compositor
	mem   *backend.MemRenderer
	input *backend.Headless
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	srv := server.New(nil, server.Options{})
	mem := backend.NewMemRenderer(nil)
	input := backend.NewHeadless(0)
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	comp, err := New(srv, mem, input.Events(), nil, opts)
	if err != nil {
		t.Fatalf("new compositor: %v", err)
	}
	return &harness{t: t, srv: srv, comp: comp, mem: mem, input: input}
}

func (h *harness) pump() { servertest.Pump(h.srv, h.comp) }

func (h *harness) inject(events ...backend.InputEvent) {
	h.t.Helper()
	for _, ev := range events {
		if err := h.input.Inject(ev); err != nil {
			h.t.Fatalf("inject: %v", err)
		}
	}
	h.pump()
}

// surface returns the server side of a client's wl_surface.
func (h *harness) surface(c *client, id uint32) *Surface {
	h.t.Helper()
	for _, s := range h.comp.Surfaces() {
		if s.res.Client == c.ID && s.res.ID == id {
			return s
		}
	}
	h.t.Fatalf("surface %d of client %d not found", id, c.ID)
	return nil
}

type client struct {
	*servertest.Client
	h          *harness
	compositor uint32
	shm        uint32
	seat       uint32
	wmBase     uint32
	pointer    uint32
	keyboard   uint32
}

// connect binds the globals a typical client uses and drops the initial
// burst of events.
func (h *harness) connect() *client {
	h.t.Helper()
	c := &client{Client: servertest.Connect(h.t, h.srv), h: h}
	c.compositor = c.Bind(globalCompositor, protocol.WlCompositor, 4)
	c.shm = c.Bind(globalShm, protocol.WlShm, 1)
	c.seat = c.Bind(globalSeat, protocol.WlSeat, 5)
	c.wmBase = c.Bind(globalWmBase, protocol.XdgWmBase, 2)
	h.pump()
	c.Events()
	return c
}

func (c *client) getPointer() {
	c.pointer = c.NewID(protocol.WlPointer)
	c.Send(c.seat, 0, protocol.NewIDArg(c.pointer, protocol.WlPointer))
}

func (c *client) getKeyboard() {
	c.keyboard = c.NewID(protocol.WlKeyboard)
	c.Send(c.seat, 1, protocol.NewIDArg(c.keyboard, protocol.WlKeyboard))
}

func (c *client) createSurface() uint32 {
	id := c.NewID(protocol.WlSurface)
	c.Send(c.compositor, 0, protocol.NewIDArg(id, protocol.WlSurface))
	return id
}

// createPool shares a memfd of size bytes with the server.
func (c *client) createPool(size int32) uint32 {
	c.h.t.Helper()
	fd, err := unix.MemfdCreate("texelway-test", unix.MFD_CLOEXEC)
	if err != nil {
		c.h.t.Fatalf("memfd: %v", err)
	}
	defer unix.Close(fd)
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		c.h.t.Fatalf("ftruncate: %v", err)
	}
	pool := c.NewID(protocol.WlShmPool)
	c.Send(c.shm, 0, protocol.NewIDArg(pool, protocol.WlShmPool), protocol.FDArg(fd), protocol.IntArg(size))
	return pool
}

func (c *client) createBufferIn(pool uint32, offset, width, height, stride int32) uint32 {
	buf := c.NewID(protocol.WlBuffer)
	c.Send(pool, 0, protocol.NewIDArg(buf, protocol.WlBuffer), protocol.IntArg(offset),
		protocol.IntArg(width), protocol.IntArg(height), protocol.IntArg(stride), protocol.UintArg(protocol.ShmFormatARGB8888))
	return buf
}

// createBuffer makes a tightly packed ARGB buffer in its own pool.
func (c *client) createBuffer(width, height int32) uint32 {
	pool := c.createPool(width * height * 4)
	return c.createBufferIn(pool, 0, width, height, width*4)
}

func (c *client) attach(surface, buffer uint32) {
	c.Send(surface, 1, protocol.ObjectArg(buffer), protocol.IntArg(0), protocol.IntArg(0))
}

func (c *client) commit(surface uint32) { c.Send(surface, 6) }

type window struct {
	surface  uint32
	xdg      uint32
	toplevel uint32
	buffer   uint32
}

// createWindow builds a mapped toplevel of the given size.
func (c *client) createWindow(width, height int32) window {
	var w window
	w.surface = c.createSurface()
	w.xdg = c.NewID(protocol.XdgSurface)
	c.Send(c.wmBase, 2, protocol.NewIDArg(w.xdg, protocol.XdgSurface), protocol.ObjectArg(w.surface))
	w.toplevel = c.NewID(protocol.XdgToplevel)
	c.Send(w.xdg, 1, protocol.NewIDArg(w.toplevel, protocol.XdgToplevel))
	c.h.pump()
	w.buffer = c.createBuffer(width, height)
	c.attach(w.surface, w.buffer)
	c.commit(w.surface)
	c.h.pump()
	return w
}

// place moves a window so its surface origin sits at x,y.
func (h *harness) place(c *client, w window, x, y int) *Surface {
	h.t.Helper()
	s := h.surface(c, w.surface)
	n := h.comp.wm.Find(s)
	if n == nil {
		h.t.Fatalf("surface %d has no window", w.surface)
	}
	n.Position = Point{x, y}
	return s
}

func displayErrors(events []servertest.Event) []uint32 {
	var codes []uint32
	for _, ev := range servertest.Find(events, protocol.WlDisplay, "error") {
		codes = append(codes, ev.Args[1].Uint)
	}
	return codes
}

func countFrom(events []servertest.Event, sender uint32, name string) int {
	n := 0
	for _, ev := range events {
		if ev.Sender == sender && ev.Name == name {
			n++
		}
	}
	return n
}
