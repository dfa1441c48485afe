// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/compositor.go
// Summary: Wires surfaces, shm, xdg-shell, seat and output into a server.Driver.
// Usage: compositor.New(srv, renderer, input, keymap, opts) then srv.Run(ctx, comp).
// Notes: Runs entirely on the server loop goroutine; input arrives over a channel drained each iteration.

package compositor

import (
	"time"

	"github.com/framegrace/texelway/backend"
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// Options tunes a Compositor. Zero values select defaults.
type Options struct {
	Output      OutputInfo
	Sensitivity float64
	SeatName    string
	RepeatRate  int32
	RepeatDelay int32
	// Seed fixes window placement; zero seeds from the clock.
	Seed  uint32
	Focus FocusObserver
}

func (o Options) withDefaults() Options {
	o.Output = o.Output.withDefaults()
	if o.Sensitivity <= 0 {
		o.Sensitivity = 1
	}
	if o.SeatName == "" {
		o.SeatName = "seat0"
	}
	if o.RepeatRate <= 0 {
		o.RepeatRate = 25
	}
	if o.RepeatDelay <= 0 {
		o.RepeatDelay = 600
	}
	return o
}

// Compositor is the display-server core behind the wire protocol.
type Compositor struct {
	srv      *server.Server
	reg      *registry.Registry
	renderer backend.Renderer
	input    <-chan backend.InputEvent
	keymap   backend.Keymap
	wm       *WindowManager
	seat     *Seat
	output   OutputInfo
	surfaces []*Surface
	start    time.Time
	releases uint64
}

// New registers globals and handlers on srv. A nil renderer or keymap is
// replaced by the in-memory renderer and the basic keymap; a nil input
// channel means no input.
func New(srv *server.Server, renderer backend.Renderer, input <-chan backend.InputEvent, keymap backend.Keymap, opts Options) (*Compositor, error) {
	opts = opts.withDefaults()
	if renderer == nil {
		renderer = backend.NewMemRenderer(nil)
	}
	if keymap == nil {
		keymap = backend.NewBasicKeymap()
	}
	c := &Compositor{
		srv:      srv,
		reg:      srv.Registry(),
		renderer: renderer,
		input:    input,
		keymap:   keymap,
		wm:       NewWindowManager(opts.Seed),
		output:   opts.Output,
		start:    time.Now(),
	}
	c.seat = newSeat(c, opts)
	c.seat.Warp(float64(c.output.Width/2), float64(c.output.Height/2))

	globals := []struct {
		iface protocol.InterfaceID
		bind  server.BindFunc
	}{
		{protocol.WlCompositor, nil},
		{protocol.WlShm, bindShm(c)},
		{protocol.WlSeat, bindSeat(c)},
		{protocol.WlOutput, bindOutput(c)},
		{protocol.XdgWmBase, nil},
	}
	for _, g := range globals {
		if _, err := srv.AddGlobal(g.iface, g.iface.Interface().Version, g.bind); err != nil {
			return nil, err
		}
	}

	handlers := map[protocol.InterfaceID]server.HandlerFunc{
		protocol.WlCompositor:  handleCompositor(c),
		protocol.WlRegion:      handleRegion(c),
		protocol.WlSurface:     handleSurface(c),
		protocol.WlShm:         handleShm(c),
		protocol.WlShmPool:     handleShmPool(c),
		protocol.WlBuffer:      ignore,
		protocol.WlSeat:        handleSeat(c),
		protocol.WlPointer:     handlePointer,
		protocol.WlKeyboard:    ignore,
		protocol.WlTouch:       ignore,
		protocol.WlOutput:      ignore,
		protocol.XdgWmBase:     handleWmBase(c),
		protocol.XdgPositioner: handlePositioner,
		protocol.XdgSurface:    handleXdgSurface(c),
		protocol.XdgToplevel:   handleToplevel(c),
	}
	for iface, fn := range handlers {
		srv.HandleInterface(iface, iface.Interface().Version, fn)
	}
	return c, nil
}

// ignore serves interfaces whose requests are all destructors or no-ops.
func ignore(*server.Server, server.Request) error { return nil }

func handleCompositor(c *Compositor) server.HandlerFunc {
	return func(s *server.Server, req server.Request) error {
		res, ok := c.reg.Lookup(req.Client(), req.ObjectID(0))
		if !ok {
			return nil
		}
		switch req.Opcode {
		case 0:
			_, err := c.newSurface(res)
			return err
		case 1:
			return c.newRegion(res)
		}
		return nil
	}
}

func (c *Compositor) WindowManager() *WindowManager { return c.wm }
func (c *Compositor) Seat() *Seat                   { return c.seat }
func (c *Compositor) Output() OutputInfo            { return c.output }

// Surfaces returns the live surfaces in creation order.
func (c *Compositor) Surfaces() []*Surface { return append([]*Surface(nil), c.surfaces...) }

// Releases counts wl_buffer.release events sent so far.
func (c *Compositor) Releases() uint64 { return c.releases }

// DrainInput handles every queued input event without blocking. It reports
// false once a stop was requested or the input channel closed.
func (c *Compositor) DrainInput() bool {
	if c.input == nil {
		return true
	}
	for {
		select {
		case ev, ok := <-c.input:
			if !ok {
				c.input = nil
				debugLog.Printf("compositor: input closed")
				return false
			}
			if !c.HandleInput(ev) {
				return false
			}
		default:
			return true
		}
	}
}

// HandleInput routes one event to the seat. It returns false for StopRequested.
func (c *Compositor) HandleInput(ev backend.InputEvent) bool {
	switch e := ev.(type) {
	case backend.PointerMotion:
		c.seat.Motion(e)
	case backend.PointerButton:
		c.seat.Button(e)
	case backend.KeyPress:
		c.seat.Key(e)
	case backend.StopRequested:
		return false
	}
	return true
}

// Scene composes the mapped windows bottom to top.
func (c *Compositor) Scene() backend.Scene {
	scene := backend.Scene{Width: c.output.Width, Height: c.output.Height}
	scene.PointerX, scene.PointerY = c.seat.Position()
	for _, n := range c.wm.NodesAscending() {
		g, ok := n.Geometry()
		if !ok || !n.Draw {
			continue
		}
		win := backend.SceneWindow{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height, Focused: n.Focused}
		if b := n.Surface.Buffer(); b != nil {
			win.Buffer = b.handle
		}
		if role := n.Surface.role; role != nil {
			win.Title = role.Title()
		}
		scene.Windows = append(scene.Windows, win)
	}
	return scene
}

// Update presents the current scene, then fires frame callbacks.
func (c *Compositor) Update(now time.Time) {
	if err := c.renderer.Present(c.Scene()); err != nil {
		debugLog.Printf("compositor: present: %v", err)
	}
	ms := uint32(now.Sub(c.start) / time.Millisecond)
	for _, s := range c.Surfaces() {
		s.FrameDone(ms)
	}
}

func (c *Compositor) now() uint32 { return uint32(time.Since(c.start) / time.Millisecond) }

func (c *Compositor) forgetSurface(s *Surface) {
	for i, other := range c.surfaces {
		if other == s {
			c.surfaces = append(c.surfaces[:i], c.surfaces[i+1:]...)
			return
		}
	}
}

// windowGone takes s out of the window stack and seat state. Leave events
// are skipped once the surface object itself is gone.
func (c *Compositor) windowGone(s *Surface) {
	c.wm.RemoveSurface(s)
	c.seat.forget(s, !s.destroyed)
}

var _ server.Driver = (*Compositor)(nil)
