// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/servertest/client.go
// Summary: Minimal wire client for driving a Server over a socketpair in tests.
// Usage: Imported by server and compositor tests.
// Notes: Not shipped with production binaries; only used in test code.

package servertest

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// Event is one decoded server event.
type Event struct {
	Sender    uint32
	Interface protocol.InterfaceID
	Name      string
	Opcode    uint16
	Args      []protocol.Arg
}

// Client speaks the wire protocol from the other end of a socketpair. It
// tracks the objects it created so events can be decoded.
type Client struct {
	t        testing.TB
	fd       int
	ID       registry.ClientID
	nextID   uint32
	objects  map[uint32]protocol.InterfaceID
	registry uint32
	buf      []byte
	fds      []int
	hungUp   bool
}

// Connect attaches a new client to srv.
func Connect(t testing.TB, srv *server.Server) *Client {
	t.Helper()
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(pair[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	id, err := srv.AddConnection(pair[0])
	if err != nil {
		t.Fatalf("add connection: %v", err)
	}
	c := &Client{
		t:       t,
		fd:      pair[1],
		ID:      id,
		nextID:  2,
		objects: map[uint32]protocol.InterfaceID{1: protocol.WlDisplay},
	}
	t.Cleanup(c.Close)
	return c
}

// Close closes the client socket and any descriptors it received.
func (c *Client) Close() {
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
	for _, fd := range c.fds {
		unix.Close(fd)
	}
	c.fds = nil
}

// NewID reserves the next object id for iface.
func (c *Client) NewID(iface protocol.InterfaceID) uint32 {
	id := c.nextID
	c.nextID++
	c.objects[id] = iface
	return id
}

// Send encodes a request on object sender using its schema.
func (c *Client) Send(sender uint32, opcode uint16, args ...protocol.Arg) {
	c.t.Helper()
	iface, ok := c.objects[sender]
	if !ok {
		c.t.Fatalf("servertest: unknown sender %d", sender)
	}
	spec, ok := iface.Interface().Request(opcode)
	if !ok {
		c.t.Fatalf("servertest: %s has no request %d", iface, opcode)
	}
	payload, fds, err := protocol.SerializeArgs(spec, args)
	if err != nil {
		c.t.Fatalf("servertest: serialize %s.%s: %v", iface, spec.Name, err)
	}
	frame, err := protocol.EncodeMessage(sender, opcode, payload)
	if err != nil {
		c.t.Fatalf("servertest: encode: %v", err)
	}
	c.SendRaw(frame, fds...)
}

// SendRaw writes frame verbatim, passing fds alongside it.
func (c *Client) SendRaw(frame []byte, fds ...int) {
	c.t.Helper()
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	if err := unix.Sendmsg(c.fd, frame, oob, nil, 0); err != nil {
		c.t.Fatalf("servertest: sendmsg: %v", err)
	}
}

// Registry returns the client's wl_registry id, requesting it on first use.
func (c *Client) Registry() uint32 {
	if c.registry == 0 {
		c.registry = c.NewID(protocol.WlRegistry)
		c.Send(1, 1, protocol.NewIDArg(c.registry, protocol.WlRegistry))
	}
	return c.registry
}

// Bind binds global name as iface at version and returns the new object id.
func (c *Client) Bind(name uint32, iface protocol.InterfaceID, version uint32) uint32 {
	reg := c.Registry()
	id := c.NewID(iface)
	c.Send(reg, 0, protocol.UintArg(name), protocol.UntypedNewIDArg(id, iface.String(), version))
	return id
}

// Events reads and decodes every event currently buffered on the socket.
func (c *Client) Events() []Event {
	c.t.Helper()
	c.fill()
	var events []Event
	for len(c.buf) >= protocol.HeaderSize {
		hdr, err := protocol.DecodeHeader(c.buf)
		if err != nil || hdr.Validate() != nil {
			c.t.Fatalf("servertest: bad header %+v: %v", hdr, err)
		}
		if len(c.buf) < int(hdr.Size) {
			break
		}
		payload := c.buf[protocol.HeaderSize:hdr.Size]
		c.buf = c.buf[hdr.Size:]

		iface, ok := c.objects[hdr.Sender]
		if !ok {
			c.t.Fatalf("servertest: event for unknown object %d", hdr.Sender)
		}
		spec, ok := iface.Interface().Event(hdr.Opcode)
		if !ok {
			c.t.Fatalf("servertest: %s has no event %d", iface, hdr.Opcode)
		}
		args, used, err := protocol.ParseArgs(lenient(spec), table{c}, 1, payload, c.fds)
		if err != nil {
			c.t.Fatalf("servertest: decode %s.%s: %v", iface, spec.Name, err)
		}
		c.fds = c.fds[used:]
		if hdr.Sender == 1 && hdr.Opcode == 1 {
			delete(c.objects, args[0].Uint)
		}
		events = append(events, Event{Sender: hdr.Sender, Interface: iface, Name: spec.Name, Opcode: hdr.Opcode, Args: args})
	}
	return events
}

// HungUp reports whether the server closed the connection. Pending events
// are consumed by the check.
func (c *Client) HungUp() bool {
	c.fill()
	return c.hungUp
}

func (c *Client) fill() {
	buf := make([]byte, 4*protocol.MaxMessageSize)
	oob := make([]byte, unix.CmsgSpace(4*protocol.MaxFDs))
	for !c.hungUp {
		n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return
		}
		if err != nil {
			c.hungUp = true
			return
		}
		if oobn > 0 {
			msgs, _ := unix.ParseSocketControlMessage(oob[:oobn])
			for i := range msgs {
				if fds, err := unix.ParseUnixRights(&msgs[i]); err == nil {
					c.fds = append(c.fds, fds...)
				}
			}
		}
		if n == 0 {
			c.hungUp = true
			return
		}
		c.buf = append(c.buf, buf[:n]...)
	}
}

// lenient drops object type checks; events may name objects the client
// never created, such as the target of wl_display.error.
func lenient(spec *protocol.MessageSpec) *protocol.MessageSpec {
	out := *spec
	out.Args = append([]protocol.ArgSpec(nil), spec.Args...)
	for i := range out.Args {
		if out.Args[i].Kind == protocol.ArgObject {
			out.Args[i].Interface = protocol.Untyped
		}
	}
	return &out
}

type table struct{ c *Client }

func (t table) InterfaceOf(id uint32) (protocol.InterfaceID, bool) {
	if iface, ok := t.c.objects[id]; ok {
		return iface, true
	}
	return protocol.Untyped, true
}

func (t table) Allocate(uint32, protocol.InterfaceID, uint32) error { return nil }

// Pump runs enough loop iterations for every client to drain the requests
// it has sent so far.
func Pump(srv *server.Server, driver server.Driver) {
	for i := 0; i < 64; i++ {
		_ = srv.Iterate(driver, 0)
	}
	time.Sleep(time.Millisecond)
	_ = srv.Iterate(driver, 0)
}

// Find returns the events named name on interface iface.
func Find(events []Event, iface protocol.InterfaceID, name string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Interface == iface && ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
