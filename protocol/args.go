// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/args.go
// Summary: Dynamic argument values produced and consumed by the codec.

package protocol

import "fmt"

// Arg is a single decoded argument. Only the fields relevant to Kind are set.
//
// Object and new_id arguments carry the wire id in Uint. Untyped new_id
// arguments additionally carry the interface name and version sent by the
// client; Interface is Untyped until the registry assigns a type.
type Arg struct {
	Kind      ArgKind
	Int       int32
	Uint      uint32
	Fixed     Fixed
	String    string
	Null      bool
	Array     []byte
	FD        int
	Interface InterfaceID
	IfaceName string
	Version   uint32
}

func IntArg(v int32) Arg     { return Arg{Kind: ArgInt, Int: v} }
func UintArg(v uint32) Arg   { return Arg{Kind: ArgUint, Uint: v} }
func FixedArg(v Fixed) Arg   { return Arg{Kind: ArgFixed, Fixed: v} }
func ArrayArg(b []byte) Arg  { return Arg{Kind: ArgArray, Array: b} }
func FDArg(fd int) Arg       { return Arg{Kind: ArgFD, FD: fd} }
func StringArg(s string) Arg { return Arg{Kind: ArgString, String: s} }
func NullStringArg() Arg     { return Arg{Kind: ArgString, Null: true} }

// ObjectArg references an existing object; id 0 is the null object.
func ObjectArg(id uint32) Arg {
	return Arg{Kind: ArgObject, Uint: id, Null: id == 0}
}

// NewIDArg is a typed new_id.
func NewIDArg(id uint32, iface InterfaceID) Arg {
	return Arg{Kind: ArgNewID, Uint: id, Interface: iface}
}

// UntypedNewIDArg is a new_id whose interface travels on the wire.
func UntypedNewIDArg(id uint32, ifaceName string, version uint32) Arg {
	return Arg{Kind: ArgNewID, Uint: id, Interface: Untyped, IfaceName: ifaceName, Version: version}
}

// Format renders the argument for logs and traces.
func (a Arg) Format() string {
	switch a.Kind {
	case ArgInt:
		return fmt.Sprintf("%d", a.Int)
	case ArgUint:
		return fmt.Sprintf("%d", a.Uint)
	case ArgFixed:
		return fmt.Sprintf("%.3f", a.Fixed.Float())
	case ArgString:
		if a.Null {
			return "nil"
		}
		return fmt.Sprintf("%q", a.String)
	case ArgObject:
		if a.Null {
			return "nil"
		}
		return fmt.Sprintf("obj#%d", a.Uint)
	case ArgNewID:
		if a.Interface == Untyped {
			return fmt.Sprintf("new#%d(%s v%d)", a.Uint, a.IfaceName, a.Version)
		}
		return fmt.Sprintf("new#%d(%s)", a.Uint, a.Interface)
	case ArgArray:
		return fmt.Sprintf("array[%d]", len(a.Array))
	case ArgFD:
		return fmt.Sprintf("fd %d", a.FD)
	}
	return "?"
}
