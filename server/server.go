// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/server.go
// Summary: Single-threaded poll loop serving display clients.
// Usage: cmd/texelway builds a Server, lets the compositor register globals and handlers, then calls Run.
// Notes: Registry, surfaces and windows are mutated only from Run's goroutine; no locking is used.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
)

// DefaultPollInterval bounds a single loop iteration, roughly one frame.
const DefaultPollInterval = 16 * time.Millisecond

// BindFunc runs after a client binds a global; res is already typed.
type BindFunc func(s *Server, res registry.Resource) error

// Driver is the compositor side of the event loop.
type Driver interface {
	// DrainInput processes queued input events. Returning false stops the loop.
	DrainInput() bool
	// Update runs once per iteration after outgoing events are flushed.
	Update(now time.Time)
}

// Tracer observes every request dispatched and event sent.
type Tracer interface {
	Trace(incoming bool, res registry.Resource, msg *protocol.MessageSpec, args []protocol.Arg)
}

// Options configures a Server.
type Options struct {
	PollInterval time.Duration
	MaxClients   int
	Tracer       Tracer
	Stats        DispatchStatsObserver
}

// Server owns client connections and routes their requests.
type Server struct {
	reg      *registry.Registry
	listener *Listener
	conns    map[registry.ClientID]*Connection
	serials  SerialAllocator
	handlers *handlerTable
	binds    map[uint32]BindFunc
	tracer   Tracer
	stats    DispatchStatsObserver
	opts     Options
	running  bool
}

// New creates a server around reg. wl_display and wl_registry requests are
// served by built-in handlers.
func New(reg *registry.Registry, opts Options) *Server {
	if reg == nil {
		reg = registry.New()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	s := &Server{
		reg:      reg,
		conns:    make(map[registry.ClientID]*Connection),
		handlers: newHandlerTable(),
		binds:    make(map[uint32]BindFunc),
		tracer:   opts.Tracer,
		stats:    opts.Stats,
		opts:     opts,
	}
	s.HandleInterface(protocol.WlDisplay, 1, handleDisplay)
	return s
}

// Registry exposes the resource registry.
func (s *Server) Registry() *registry.Registry { return s.reg }

// Serials exposes the process-wide serial allocator.
func (s *Server) Serials() *SerialAllocator { return &s.serials }

// AddGlobal advertises iface and installs an optional bind hook.
func (s *Server) AddGlobal(iface protocol.InterfaceID, version uint32, bind BindFunc) (registry.Global, error) {
	g, err := s.reg.AddGlobal(iface, version)
	if err != nil {
		return g, err
	}
	if bind != nil {
		s.binds[g.Name] = bind
	}
	return g, nil
}

// Listen binds the server's socket.
func (s *Server) Listen(path string) error {
	l, err := Listen(path)
	if err != nil {
		return err
	}
	s.listener = l
	log.Printf("server: listening on %s", path)
	return nil
}

// AddConnection adopts an already connected socket as a new client. The
// wl_display object is created with id 1.
func (s *Server) AddConnection(fd int) (registry.ClientID, error) {
	if s.opts.MaxClients > 0 && len(s.conns) >= s.opts.MaxClients {
		unix.Close(fd)
		return 0, fmt.Errorf("server: client limit %d reached", s.opts.MaxClients)
	}
	client := s.reg.AddClient()
	if _, err := s.reg.Create(client, 1, protocol.WlDisplay, 1); err != nil {
		s.reg.RemoveClient(client)
		unix.Close(fd)
		return 0, err
	}
	s.conns[client] = newConnection(fd, client)
	debugLog.Printf("server: client %d connected fd=%d", client, fd)
	return client, nil
}

// Connected reports whether the client still has a live connection.
func (s *Server) Connected(client registry.ClientID) bool {
	_, ok := s.conns[client]
	return ok
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int { return len(s.conns) }

// SendEvent queues an event on res. Events newer than the resource's bound
// version are skipped. Descriptor arguments are owned by the server from
// here on.
func (s *Server) SendEvent(res registry.Resource, opcode uint16, args ...protocol.Arg) error {
	conn, ok := s.conns[res.Client]
	if !ok {
		closeFDArgs(args)
		return nil
	}
	spec, ok := res.Interface.Interface().Event(opcode)
	if !ok {
		closeFDArgs(args)
		return fmt.Errorf("server: %s has no event %d", res.Interface, opcode)
	}
	if spec.Since > res.Version {
		closeFDArgs(args)
		debugLog.Printf("server: skip %s.%s for v%d", res.Interface, spec.Name, res.Version)
		return nil
	}
	payload, fds, err := protocol.SerializeArgs(spec, args)
	if err != nil {
		closeFDArgs(args)
		return err
	}
	frame, err := protocol.EncodeMessage(res.ID, opcode, payload)
	if err != nil {
		closeAll(fds)
		return err
	}
	if s.tracer != nil {
		s.tracer.Trace(false, res, spec, args)
	}
	return conn.queue(frame, fds)
}

func closeFDArgs(args []protocol.Arg) {
	for _, a := range args {
		if a.Kind == protocol.ArgFD {
			unix.Close(a.FD)
		}
	}
}

// DestroyResource removes res from the registry, running its destructor,
// and acknowledges the freed id with wl_display.delete_id.
func (s *Server) DestroyResource(res registry.Resource) error {
	if err := s.reg.Destroy(res); err != nil {
		return err
	}
	s.Unhandle(res)
	if res.ID > protocol.MaxClientObjectID {
		return nil
	}
	display, ok := s.reg.Lookup(res.Client, 1)
	if !ok {
		return nil
	}
	return s.SendEvent(display, 1, protocol.UintArg(res.ID))
}

// PostError sends wl_display.error for pe and disconnects the client.
func (s *Server) PostError(client registry.ClientID, pe *ProtocolError) {
	conn, ok := s.conns[client]
	if !ok {
		return
	}
	log.Printf("server: client %d: %v", client, pe)
	if display, ok := s.reg.Lookup(client, 1); ok {
		object := pe.ObjectID
		if object == 0 {
			object = display.ID
		}
		msg := pe.Message
		if len(msg) > 1024 {
			msg = msg[:1024]
		}
		if err := s.SendEvent(display, 0, protocol.ObjectArg(object), protocol.UintArg(pe.Code), protocol.StringArg(msg)); err == nil {
			_ = conn.Flush()
		}
	}
	s.Disconnect(client)
}

// Disconnect tears a client down: its objects are destroyed newest first,
// its socket and queued descriptors closed.
func (s *Server) Disconnect(client registry.ClientID) {
	conn, ok := s.conns[client]
	if !ok {
		return
	}
	delete(s.conns, client)
	s.handlers.forgetClient(client)
	removed := s.reg.RemoveClient(client)
	if err := conn.Close(); err != nil {
		debugLog.Printf("server: close client %d: %v", client, err)
	}
	debugLog.Printf("server: client %d disconnected objects=%d", client, removed)
	if s.stats != nil {
		s.stats.ObserveDispatch(DispatchStats{
			Client:   client,
			Messages: conn.messages,
			Misses:   conn.misses,
			Failures: conn.failures,
			Objects:  removed,
		})
	}
}

// Stop asks Run to return after the current iteration.
func (s *Server) Stop() { s.running = false }

// Run serves clients until ctx is cancelled, Stop is called or the driver
// asks to stop. All client connections are closed on return.
func (s *Server) Run(ctx context.Context, driver Driver) error {
	s.running = true
	defer s.shutdown()
	for s.running {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.Iterate(driver, s.opts.PollInterval); err != nil {
			return err
		}
	}
	return nil
}

// Iterate runs one loop iteration: poll, read at most one message per ready
// client, drain input, flush, update, flush.
func (s *Server) Iterate(driver Driver, timeout time.Duration) error {
	if err := s.poll(timeout); err != nil {
		return err
	}
	if driver != nil && !driver.DrainInput() {
		s.running = false
	}
	s.flushAll()
	if driver != nil {
		driver.Update(time.Now())
		s.flushAll()
	}
	return nil
}

func (s *Server) poll(timeout time.Duration) error {
	pfds := make([]unix.PollFd, 0, len(s.conns)+1)
	if s.listener != nil {
		pfds = append(pfds, unix.PollFd{Fd: int32(s.listener.Fd()), Events: unix.POLLIN})
	}
	clients := make([]registry.ClientID, 0, len(s.conns))
	for id := range s.conns {
		clients = append(clients, id)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	for _, id := range clients {
		pfds = append(pfds, unix.PollFd{Fd: int32(s.conns[id].fd), Events: unix.POLLIN})
	}
	if len(pfds) == 0 {
		time.Sleep(timeout)
		return nil
	}

	_, err := unix.Poll(pfds, int(timeout/time.Millisecond))
	if errors.Is(err, unix.EINTR) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("server: poll: %w", err)
	}

	offset := 0
	if s.listener != nil {
		offset = 1
		if pfds[0].Revents&unix.POLLIN != 0 {
			s.acceptPending()
		}
	}
	for i, id := range clients {
		revents := pfds[i+offset].Revents
		conn, ok := s.conns[id]
		if !ok {
			continue
		}
		switch {
		case revents&unix.POLLIN != 0:
			s.readOne(conn)
		case revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0:
			debugLog.Printf("server: client %d hung up", id)
			s.Disconnect(id)
		}
	}
	return nil
}

func (s *Server) acceptPending() {
	for {
		fd, err := s.listener.Accept()
		if err != nil {
			log.Printf("server: %v", err)
			return
		}
		if fd < 0 {
			return
		}
		if _, err := s.AddConnection(fd); err != nil {
			log.Printf("server: rejecting connection: %v", err)
		}
	}
}

func (s *Server) readOne(conn *Connection) {
	client := conn.Client()
	msg, err := conn.ReadMessage()
	switch {
	case err == nil:
	case errors.Is(err, errNoMessage):
		return
	case errors.Is(err, io.EOF):
		s.Disconnect(client)
		return
	default:
		log.Printf("server: client %d transport error: %v", client, err)
		s.Disconnect(client)
		return
	}

	err = s.dispatch(conn, msg)
	if err == nil {
		return
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		conn.failures++
		s.PostError(client, pe)
		return
	}
	conn.failures++
	log.Printf("server: client %d: request aborted: %v", client, err)
}

func (s *Server) flushAll() {
	for id, conn := range s.conns {
		if !conn.Pending() {
			continue
		}
		if err := conn.Flush(); err != nil {
			log.Printf("server: client %d write failed: %v", id, err)
			s.Disconnect(id)
		}
	}
}

func (s *Server) shutdown() {
	s.flushAll()
	for id := range s.conns {
		s.Disconnect(id)
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			debugLog.Printf("server: close listener: %v", err)
		}
		s.listener = nil
	}
}

// handleDisplay serves wl_display.sync and wl_display.get_registry.
func handleDisplay(s *Server, req Request) error {
	switch req.Opcode {
	case 0:
		cb, ok := s.reg.Lookup(req.Client(), req.ObjectID(0))
		if !ok {
			return nil
		}
		if err := s.SendEvent(cb, 0, protocol.UintArg(s.serials.Next())); err != nil {
			return err
		}
		return s.DestroyResource(cb)
	case 1:
		res, ok := s.reg.Lookup(req.Client(), req.ObjectID(0))
		if !ok {
			return nil
		}
		for _, g := range s.reg.Globals() {
			if err := s.SendEvent(res, 0, protocol.UintArg(g.Name), protocol.StringArg(g.Interface.String()), protocol.UintArg(g.Version)); err != nil {
				return err
			}
		}
	}
	return nil
}
