// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/dispatch.go
// Summary: Routes parsed requests to per-resource and per-interface handlers.
// Usage: Compositor code registers handlers with Handle and HandleInterface.
// Notes: Registrations made while a message is being dispatched take effect after it completes.

package server

import (
	"fmt"
	"log"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
)

// Request is one parsed client request.
type Request struct {
	Resource registry.Resource
	Opcode   uint16
	Spec     *protocol.MessageSpec
	Args     []protocol.Arg
}

func (r Request) Int(i int) int32            { return r.Args[i].Int }
func (r Request) Uint(i int) uint32          { return r.Args[i].Uint }
func (r Request) Fixed(i int) protocol.Fixed { return r.Args[i].Fixed }
func (r Request) String(i int) string        { return r.Args[i].String }
func (r Request) Array(i int) []byte         { return r.Args[i].Array }
func (r Request) FD(i int) int               { return r.Args[i].FD }
func (r Request) ObjectID(i int) uint32      { return r.Args[i].Uint }
func (r Request) Client() registry.ClientID  { return r.Resource.Client }
func (r Request) Is(iface protocol.InterfaceID, opcode uint16) bool {
	return r.Resource.Interface == iface && r.Opcode == opcode
}

// HandlerFunc handles a request. Returning a *ProtocolError disconnects the
// client; any other error aborts handling of this message only.
type HandlerFunc func(s *Server, req Request) error

// ProtocolError is a client-fatal error reported through wl_display.error.
type ProtocolError struct {
	ObjectID uint32
	Code     uint32
	Message  string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error object=%d code=%d: %s: %v", e.ObjectID, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("protocol error object=%d code=%d: %s", e.ObjectID, e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewProtocolError builds a protocol error against res.
func NewProtocolError(res registry.Resource, code uint32, format string, args ...any) *ProtocolError {
	return &ProtocolError{ObjectID: res.ID, Code: code, Message: fmt.Sprintf(format, args...)}
}

type universalHandler struct {
	iface   protocol.InterfaceID
	version uint32
	fn      HandlerFunc
}

type handlerTable struct {
	individual  map[registry.Resource]HandlerFunc
	universal   []universalHandler
	pending     []func(*handlerTable)
	dispatching bool
}

func newHandlerTable() *handlerTable {
	return &handlerTable{individual: make(map[registry.Resource]HandlerFunc)}
}

func (t *handlerTable) mutate(fn func(*handlerTable)) {
	if t.dispatching {
		t.pending = append(t.pending, fn)
		return
	}
	fn(t)
}

func (t *handlerTable) applyPending() {
	pending := t.pending
	t.pending = nil
	for _, fn := range pending {
		fn(t)
	}
}

// match returns the handlers that fire for res: the individual handler if
// one is registered, else every universal handler covering its version.
func (t *handlerTable) match(res registry.Resource) []HandlerFunc {
	if fn, ok := t.individual[res]; ok {
		return []HandlerFunc{fn}
	}
	var out []HandlerFunc
	for _, h := range t.universal {
		if h.iface == res.Interface && h.version >= res.Version {
			out = append(out, h.fn)
		}
	}
	return out
}

func (t *handlerTable) forgetClient(client registry.ClientID) {
	for res := range t.individual {
		if res.Client == client {
			delete(t.individual, res)
		}
	}
}

// Handle routes requests on exactly res to fn, ahead of universal handlers.
func (s *Server) Handle(res registry.Resource, fn HandlerFunc) {
	s.handlers.mutate(func(t *handlerTable) {
		if s.reg.Alive(res) {
			t.individual[res] = fn
		}
	})
}

// Unhandle removes the individual handler for res.
func (s *Server) Unhandle(res registry.Resource) {
	s.handlers.mutate(func(t *handlerTable) { delete(t.individual, res) })
}

// HandleInterface routes requests on every resource of iface bound at a
// version up to version to fn.
func (s *Server) HandleInterface(iface protocol.InterfaceID, version uint32, fn HandlerFunc) {
	s.handlers.mutate(func(t *handlerTable) {
		t.universal = append(t.universal, universalHandler{iface: iface, version: version, fn: fn})
	})
}

// dispatch resolves, parses and routes one frame from conn.
func (s *Server) dispatch(conn *Connection, msg protocol.RawMessage) error {
	client := conn.Client()
	sender, ok := s.reg.Lookup(client, msg.Header.Sender)
	if !ok {
		return &ProtocolError{ObjectID: msg.Header.Sender, Code: protocol.DisplayErrorInvalidObject,
			Message: fmt.Sprintf("unknown object %d", msg.Header.Sender)}
	}
	iface := sender.Interface.Interface()
	if iface == nil {
		return NewProtocolError(sender, protocol.DisplayErrorInvalidObject, "object %d has no interface", sender.ID)
	}
	spec, ok := iface.Request(msg.Header.Opcode)
	if !ok || spec.Since > sender.Version {
		return NewProtocolError(sender, protocol.DisplayErrorInvalidMethod,
			"invalid method %d on %s v%d", msg.Header.Opcode, iface.Name, sender.Version)
	}

	args, used, err := protocol.ParseArgs(spec, s.reg.Namespace(client), sender.Version, msg.Payload, msg.FDs)
	if err != nil {
		return &ProtocolError{ObjectID: sender.ID, Code: protocol.DisplayErrorInvalidMethod,
			Message: fmt.Sprintf("malformed %s.%s", iface.Name, spec.Name), Err: err}
	}
	conn.takeFDs(used)
	conn.messages++

	req := Request{Resource: sender, Opcode: msg.Header.Opcode, Spec: spec, Args: args}
	if s.tracer != nil {
		s.tracer.Trace(true, sender, spec, args)
	}

	s.handlers.dispatching = true
	err = s.route(conn, req)
	s.handlers.dispatching = false

	if err == nil && spec.Destructor && s.reg.Alive(sender) {
		err = s.DestroyResource(sender)
	}
	s.handlers.applyPending()
	return err
}

func (s *Server) route(conn *Connection, req Request) error {
	if req.Is(protocol.WlRegistry, 0) {
		if err := s.bind(req); err != nil {
			return err
		}
	}
	handlers := s.handlers.match(req.Resource)
	if len(handlers) == 0 {
		if !req.Is(protocol.WlRegistry, 0) {
			conn.misses++
			log.Printf("server: warning: no handler for %s.%s client=%d", req.Resource.Interface, req.Spec.Name, req.Client())
		}
		return nil
	}
	for _, fn := range handlers {
		if err := fn(s, req); err != nil {
			return err
		}
	}
	return nil
}

// bind types the new object created by wl_registry.bind and runs the
// global's bind hook.
func (s *Server) bind(req Request) error {
	name := req.Uint(0)
	nid := req.Args[1]
	g, ok := s.reg.GlobalByName(name)
	if !ok {
		return NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "unknown global %d", name)
	}
	if nid.IfaceName != g.Interface.String() {
		return NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject,
			"global %d is %s, not %s", name, g.Interface, nid.IfaceName)
	}
	if nid.Version == 0 || nid.Version > g.Version {
		return NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject,
			"invalid version %d for %s (max %d)", nid.Version, g.Interface, g.Version)
	}
	untyped, ok := s.reg.Lookup(req.Client(), nid.Uint)
	if !ok {
		return NewProtocolError(req.Resource, protocol.DisplayErrorInvalidObject, "bind target %d vanished", nid.Uint)
	}
	res, err := s.reg.SetResourceInterface(untyped, g.Interface, nid.Version)
	if err != nil {
		return err
	}
	debugLog.Printf("server: client=%d bound %s v%d as %d", res.Client, g.Interface, res.Version, res.ID)
	if hook := s.binds[g.Name]; hook != nil {
		return hook(s, res)
	}
	return nil
}
