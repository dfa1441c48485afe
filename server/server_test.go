// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/server_test.go
// Summary: Exercises the event loop end to end over socketpairs.
// Usage: Executed during `go test` to guard against regressions.

package server_test

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
	"github.com/framegrace/texelway/server/servertest"
)

func TestSyncDeliversDoneAndDeleteID(t *testing.T) {
	srv := server.New(nil, server.Options{})
	c := servertest.Connect(t, srv)

	cb := c.NewID(protocol.WlCallback)
	c.Send(1, 0, protocol.NewIDArg(cb, protocol.WlCallback))
	servertest.Pump(srv, nil)

	events := c.Events()
	if len(events) != 2 {
		t.Fatalf("expected done + delete_id, got %d events", len(events))
	}
	if events[0].Interface != protocol.WlCallback || events[0].Name != "done" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Name != "delete_id" || events[1].Args[0].Uint != cb {
		t.Fatalf("unexpected second event %+v", events[1])
	}
	if _, ok := srv.Registry().Lookup(c.ID, cb); ok {
		t.Fatalf("callback still registered")
	}
}

func TestRegistryAdvertisesAndBindsGlobals(t *testing.T) {
	srv := server.New(nil, server.Options{})
	var bound []registry.Resource
	hook := func(s *server.Server, res registry.Resource) error {
		bound = append(bound, res)
		return nil
	}
	if _, err := srv.AddGlobal(protocol.WlCompositor, 4, hook); err != nil {
		t.Fatalf("add global: %v", err)
	}
	if _, err := srv.AddGlobal(protocol.WlShm, 1, hook); err != nil {
		t.Fatalf("add global: %v", err)
	}

	c := servertest.Connect(t, srv)
	c.Registry()
	servertest.Pump(srv, nil)

	globals := servertest.Find(c.Events(), protocol.WlRegistry, "global")
	if len(globals) != 2 {
		t.Fatalf("expected 2 globals, got %d", len(globals))
	}
	if globals[0].Args[0].Uint != 1 || globals[0].Args[1].String != "wl_compositor" {
		t.Fatalf("unexpected global %+v", globals[0].Args)
	}

	compositor := c.Bind(1, protocol.WlCompositor, 4)
	shm := c.Bind(2, protocol.WlShm, 1)
	servertest.Pump(srv, nil)

	if len(bound) != 2 {
		t.Fatalf("expected 2 bind hooks, got %d", len(bound))
	}
	if bound[0].ID != compositor || bound[0].Interface != protocol.WlCompositor || bound[0].Version != 4 {
		t.Fatalf("unexpected compositor binding %v", bound[0])
	}
	res, ok := srv.Registry().Lookup(c.ID, shm)
	if !ok || res.Interface != protocol.WlShm {
		t.Fatalf("shm not typed after bind: %v", res)
	}
}

func TestBindMismatchIsProtocolError(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)
	c := servertest.Connect(t, srv)
	c.Bind(1, protocol.WlShm, 1)
	servertest.Pump(srv, nil)

	errs := servertest.Find(c.Events(), protocol.WlDisplay, "error")
	if len(errs) != 1 || errs[0].Args[1].Uint != protocol.DisplayErrorInvalidObject {
		t.Fatalf("expected invalid_object error, got %+v", errs)
	}
	if srv.Connected(c.ID) {
		t.Fatalf("client should have been disconnected")
	}
}

func TestMalformedMessageDisconnectsOnlyOffender(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)

	a := servertest.Connect(t, srv)
	b := servertest.Connect(t, srv)
	a.Bind(1, protocol.WlCompositor, 4)
	bComp := b.Bind(1, protocol.WlCompositor, 4)
	servertest.Pump(srv, nil)
	a.Events()
	b.Events()

	frame := make([]byte, 20)
	protocol.EncodeHeader(frame, protocol.Header{Sender: 1, Opcode: 9, Size: 20})
	a.SendRaw(frame)
	servertest.Pump(srv, nil)

	errs := servertest.Find(a.Events(), protocol.WlDisplay, "error")
	if len(errs) != 1 || errs[0].Args[1].Uint != protocol.DisplayErrorInvalidMethod {
		t.Fatalf("expected invalid_method error, got %+v", errs)
	}
	if !a.HungUp() {
		t.Fatalf("offending client still connected")
	}
	if srv.Connected(a.ID) || srv.Registry().HasClient(a.ID) {
		t.Fatalf("offending client not torn down")
	}
	if !srv.Connected(b.ID) {
		t.Fatalf("other client was disconnected")
	}
	if _, ok := srv.Registry().Lookup(b.ID, bComp); !ok {
		t.Fatalf("other client's resources were touched")
	}
	if b.HungUp() {
		t.Fatalf("other client saw a hang-up")
	}
}

func TestUnknownSenderIsProtocolError(t *testing.T) {
	srv := server.New(nil, server.Options{})
	c := servertest.Connect(t, srv)
	frame, _ := protocol.EncodeMessage(42, 0, nil)
	c.SendRaw(frame)
	servertest.Pump(srv, nil)

	errs := servertest.Find(c.Events(), protocol.WlDisplay, "error")
	if len(errs) != 1 || errs[0].Args[0].Uint != 42 {
		t.Fatalf("expected error naming object 42, got %+v", errs)
	}
	if srv.Connected(c.ID) {
		t.Fatalf("client should have been disconnected")
	}
}

func TestHangupRunsDestructors(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)
	c := servertest.Connect(t, srv)
	comp := c.Bind(1, protocol.WlCompositor, 4)
	servertest.Pump(srv, nil)

	res, _ := srv.Registry().Lookup(c.ID, comp)
	destroyed := false
	srv.Registry().SetDestructor(res, func(registry.Resource) { destroyed = true })

	c.Close()
	servertest.Pump(srv, nil)
	if srv.Connected(c.ID) {
		t.Fatalf("client still connected after hang-up")
	}
	if !destroyed {
		t.Fatalf("destructor did not run")
	}
}

func TestHandlerPrecedenceAndVersions(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlSeat, 5, nil)

	var calls []string
	srv.HandleInterface(protocol.WlSeat, 5, func(s *server.Server, req server.Request) error {
		calls = append(calls, "universal-v5")
		return nil
	})
	srv.HandleInterface(protocol.WlSeat, 3, func(s *server.Server, req server.Request) error {
		calls = append(calls, "universal-v3")
		return nil
	})

	c := servertest.Connect(t, srv)
	seat5 := c.Bind(1, protocol.WlSeat, 5)
	seat3 := c.Bind(1, protocol.WlSeat, 3)
	servertest.Pump(srv, nil)

	c.Send(seat5, 0, protocol.NewIDArg(c.NewID(protocol.WlPointer), protocol.WlPointer))
	servertest.Pump(srv, nil)
	if strings.Join(calls, ",") != "universal-v5" {
		t.Fatalf("v5 seat dispatched to %v", calls)
	}

	calls = nil
	c.Send(seat3, 0, protocol.NewIDArg(c.NewID(protocol.WlPointer), protocol.WlPointer))
	servertest.Pump(srv, nil)
	if strings.Join(calls, ",") != "universal-v5,universal-v3" {
		t.Fatalf("v3 seat dispatched to %v", calls)
	}

	res, _ := srv.Registry().Lookup(c.ID, seat3)
	srv.Handle(res, func(s *server.Server, req server.Request) error {
		calls = append(calls, "individual")
		return nil
	})
	calls = nil
	c.Send(seat3, 0, protocol.NewIDArg(c.NewID(protocol.WlPointer), protocol.WlPointer))
	servertest.Pump(srv, nil)
	if strings.Join(calls, ",") != "individual" {
		t.Fatalf("individual handler did not take priority: %v", calls)
	}
}

func TestRegistrationsDuringDispatchAreDeferred(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)

	late := 0
	srv.HandleInterface(protocol.WlCompositor, 4, func(s *server.Server, req server.Request) error {
		s.HandleInterface(protocol.WlCompositor, 4, func(*server.Server, server.Request) error {
			late++
			return nil
		})
		return nil
	})

	c := servertest.Connect(t, srv)
	comp := c.Bind(1, protocol.WlCompositor, 4)
	servertest.Pump(srv, nil)

	c.Send(comp, 1, protocol.NewIDArg(c.NewID(protocol.WlRegion), protocol.WlRegion))
	servertest.Pump(srv, nil)
	if late != 0 {
		t.Fatalf("handler registered mid-dispatch fired for the same message")
	}
	c.Send(comp, 1, protocol.NewIDArg(c.NewID(protocol.WlRegion), protocol.WlRegion))
	servertest.Pump(srv, nil)
	if late != 1 {
		t.Fatalf("expected deferred handler to fire once, got %d", late)
	}
}

func TestDestructorRequestDestroysResource(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)
	c := servertest.Connect(t, srv)
	comp := c.Bind(1, protocol.WlCompositor, 4)
	region := c.NewID(protocol.WlRegion)
	c.Send(comp, 1, protocol.NewIDArg(region, protocol.WlRegion))
	servertest.Pump(srv, nil)
	c.Events()

	if _, ok := srv.Registry().Lookup(c.ID, region); !ok {
		t.Fatalf("region not created")
	}
	c.Send(region, 0)
	servertest.Pump(srv, nil)

	if _, ok := srv.Registry().Lookup(c.ID, region); ok {
		t.Fatalf("region survived destroy")
	}
	deletes := servertest.Find(c.Events(), protocol.WlDisplay, "delete_id")
	if len(deletes) != 1 || deletes[0].Args[0].Uint != region {
		t.Fatalf("expected delete_id for %d, got %+v", region, deletes)
	}
}

func TestHandlerErrorAbortsOnlyThatMessage(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)
	srv.HandleInterface(protocol.WlCompositor, 4, func(*server.Server, server.Request) error {
		return registry.ErrResourceType
	})
	c := servertest.Connect(t, srv)
	comp := c.Bind(1, protocol.WlCompositor, 4)
	c.Send(comp, 0, protocol.NewIDArg(c.NewID(protocol.WlSurface), protocol.WlSurface))
	servertest.Pump(srv, nil)

	if !srv.Connected(c.ID) {
		t.Fatalf("non-protocol handler error must not disconnect")
	}
	if errs := servertest.Find(c.Events(), protocol.WlDisplay, "error"); len(errs) != 0 {
		t.Fatalf("unexpected error events %+v", errs)
	}
}

func TestFileDescriptorsReachHandlers(t *testing.T) {
	srv := server.New(nil, server.Options{})
	srv.AddGlobal(protocol.WlShm, 1, nil)

	var got []int
	srv.HandleInterface(protocol.WlShm, 1, func(s *server.Server, req server.Request) error {
		got = append(got, req.FD(1))
		if req.Int(2) != 4096 {
			return errors.New("unexpected size")
		}
		return nil
	})

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	c := servertest.Connect(t, srv)
	shm := c.Bind(1, protocol.WlShm, 1)
	c.Send(shm, 0, protocol.NewIDArg(c.NewID(protocol.WlShmPool), protocol.WlShmPool), protocol.FDArg(p[1]), protocol.IntArg(4096))
	servertest.Pump(srv, nil)

	if len(got) != 1 || got[0] < 0 {
		t.Fatalf("handler did not receive a descriptor: %v", got)
	}
	var st1, st2 unix.Stat_t
	unix.Fstat(got[0], &st1)
	unix.Fstat(p[1], &st2)
	if st1.Ino != st2.Ino {
		t.Fatalf("received descriptor names a different file")
	}
	unix.Close(got[0])
}

func TestTooManyDescriptorsDisconnects(t *testing.T) {
	srv := server.New(nil, server.Options{})
	c := servertest.Connect(t, srv)

	var fds []int
	for i := 0; i < protocol.MaxFDs+1; i++ {
		fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		defer unix.Close(fd)
		fds = append(fds, fd)
	}
	cb := c.NewID(protocol.WlCallback)
	payload, _, _ := protocol.SerializeArgs(&protocol.WlDisplay.Interface().Requests[0], []protocol.Arg{protocol.NewIDArg(cb, protocol.WlCallback)})
	frame, _ := protocol.EncodeMessage(1, 0, payload)
	c.SendRaw(frame, fds...)
	servertest.Pump(srv, nil)

	if srv.Connected(c.ID) {
		t.Fatalf("client sending too many descriptors must be disconnected")
	}
}

func TestClientLimit(t *testing.T) {
	srv := server.New(nil, server.Options{MaxClients: 1})
	servertest.Connect(t, srv)
	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(pair[1])
	if _, err := srv.AddConnection(pair[0]); err == nil {
		t.Fatalf("expected client limit error")
	}
}

func TestDispatchStatsLogged(t *testing.T) {
	var buf bytes.Buffer
	srv := server.New(nil, server.Options{Stats: server.NewDispatchStatsLogger(log.New(&buf, "", 0))})
	srv.AddGlobal(protocol.WlCompositor, 4, nil)
	c := servertest.Connect(t, srv)
	comp := c.Bind(1, protocol.WlCompositor, 4)
	c.Send(comp, 1, protocol.NewIDArg(c.NewID(protocol.WlRegion), protocol.WlRegion))
	servertest.Pump(srv, nil)
	srv.Disconnect(c.ID)

	out := buf.String()
	if !strings.Contains(out, "dispatch client=") || !strings.Contains(out, "messages=3") || !strings.Contains(out, "misses=1") {
		t.Fatalf("unexpected stats output %q", out)
	}
}
