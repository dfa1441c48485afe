// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/schema.go
// Summary: Describes interfaces, messages and argument kinds for the codec.
// Usage: The dispatch engine looks up request schemas here by interface and opcode.
// Notes: Interface identity is a closed enumeration; Untyped marks a pending new-id.

package protocol

import "fmt"

// ArgKind enumerates the argument encodings understood by the codec.
type ArgKind uint8

const (
	ArgInt ArgKind = iota
	ArgUint
	ArgFixed
	ArgString
	ArgObject
	ArgNewID
	ArgArray
	ArgFD
)

func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "int"
	case ArgUint:
		return "uint"
	case ArgFixed:
		return "fixed"
	case ArgString:
		return "string"
	case ArgObject:
		return "object"
	case ArgNewID:
		return "new_id"
	case ArgArray:
		return "array"
	case ArgFD:
		return "fd"
	}
	return fmt.Sprintf("ArgKind(%d)", uint8(k))
}

// InterfaceID identifies one of the interfaces this server understands.
// Negative values never name a real interface.
type InterfaceID int32

// Untyped is carried by objects created through a generic new_id whose
// interface is assigned later, at bind time.
const Untyped InterfaceID = -1

const (
	WlDisplay InterfaceID = iota
	WlRegistry
	WlCallback
	WlCompositor
	WlRegion
	WlSurface
	WlShm
	WlShmPool
	WlBuffer
	WlSeat
	WlPointer
	WlKeyboard
	WlTouch
	WlOutput
	XdgWmBase
	XdgPositioner
	XdgSurface
	XdgToplevel
	XdgPopup
	interfaceCount
)

// ArgSpec describes one argument of a message. For object and new_id
// arguments Interface names the expected interface; Untyped accepts any
// object, or for new_id means the interface travels on the wire.
type ArgSpec struct {
	Name      string
	Kind      ArgKind
	Interface InterfaceID
	Nullable  bool
}

// MessageSpec describes one request or event.
type MessageSpec struct {
	Name       string
	Args       []ArgSpec
	Destructor bool
	Since      uint32
}

// Interface is the static schema of one protocol interface.
type Interface struct {
	ID       InterfaceID
	Name     string
	Version  uint32
	Requests []MessageSpec
	Events   []MessageSpec
}

// Request returns the schema for a request opcode.
func (i *Interface) Request(opcode uint16) (*MessageSpec, bool) {
	if i == nil || int(opcode) >= len(i.Requests) {
		return nil, false
	}
	return &i.Requests[opcode], true
}

// Event returns the schema for an event opcode.
func (i *Interface) Event(opcode uint16) (*MessageSpec, bool) {
	if i == nil || int(opcode) >= len(i.Events) {
		return nil, false
	}
	return &i.Events[opcode], true
}

// Interface returns the schema for id, or nil if id is not a known interface.
func (id InterfaceID) Interface() *Interface {
	if id < 0 || id >= interfaceCount {
		return nil
	}
	return interfaces[id]
}

func (id InterfaceID) String() string {
	if id == Untyped {
		return "<untyped>"
	}
	if iface := id.Interface(); iface != nil {
		return iface.Name
	}
	return fmt.Sprintf("InterfaceID(%d)", int32(id))
}

// LookupInterface resolves an interface by its wire name.
func LookupInterface(name string) (InterfaceID, bool) {
	for _, iface := range interfaces {
		if iface.Name == name {
			return iface.ID, true
		}
	}
	return Untyped, false
}

func msg(name string, args ...ArgSpec) MessageSpec {
	return MessageSpec{Name: name, Args: args, Since: 1}
}

func destructor(name string, args ...ArgSpec) MessageSpec {
	return MessageSpec{Name: name, Args: args, Destructor: true, Since: 1}
}

func since(v uint32, m MessageSpec) MessageSpec {
	m.Since = v
	return m
}

func intArg(name string) ArgSpec   { return ArgSpec{Name: name, Kind: ArgInt} }
func uintArg(name string) ArgSpec  { return ArgSpec{Name: name, Kind: ArgUint} }
func fixedArg(name string) ArgSpec { return ArgSpec{Name: name, Kind: ArgFixed} }
func arrayArg(name string) ArgSpec { return ArgSpec{Name: name, Kind: ArgArray} }
func fdArg(name string) ArgSpec    { return ArgSpec{Name: name, Kind: ArgFD} }

func stringArg(name string) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgString}
}

func objectArg(name string, iface InterfaceID) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgObject, Interface: iface}
}

func nullable(a ArgSpec) ArgSpec {
	a.Nullable = true
	return a
}

func newIDArg(name string, iface InterfaceID) ArgSpec {
	return ArgSpec{Name: name, Kind: ArgNewID, Interface: iface}
}
