// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/codec.go
// Summary: Schema-driven argument parsing and serialisation.
// Usage: The dispatch engine parses requests with ParseArgs; events are built with SerializeArgs.
// Notes: Parsing never panics on hostile input; every failure is a *DecodeError.

package protocol

import (
	"errors"
	"fmt"
)

// Client-allocated object ids live below the server range.
const (
	MinClientObjectID uint32 = 1
	MaxClientObjectID uint32 = 0xfeffffff
)

// ObjectTable is the per-client object namespace consulted while parsing.
type ObjectTable interface {
	// InterfaceOf reports the interface of a live object id.
	InterfaceOf(id uint32) (InterfaceID, bool)
	// Allocate reserves id for a new object. iface may be Untyped.
	Allocate(id uint32, iface InterfaceID, version uint32) error
}

var (
	ErrPayloadShort        = errors.New("protocol: payload too short")
	ErrTrailingBytes       = errors.New("protocol: payload has trailing data")
	ErrMissingFD           = errors.New("protocol: missing file descriptor")
	ErrStringNotTerminated = errors.New("protocol: string not NUL terminated")
	ErrNullArgument        = errors.New("protocol: null value for non-nullable argument")
	ErrUnknownObject       = errors.New("protocol: reference to unknown object")
	ErrObjectInterface     = errors.New("protocol: object has the wrong interface")
	ErrInvalidNewID        = errors.New("protocol: invalid new object id")
	ErrArgumentCount       = errors.New("protocol: argument count mismatch")
	ErrArgumentKind        = errors.New("protocol: argument kind mismatch")
)

// DecodeError reports which message and argument failed to parse or encode.
type DecodeError struct {
	Message string
	Arg     string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("%s(%s): %v", e.Message, e.Arg, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrPayloadShort
	}
	v := hostOrder.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// padded returns n bytes and skips the padding up to the next word.
func (r *reader) padded(n uint32) ([]byte, error) {
	size := (uint64(n) + 3) &^ 3
	if uint64(r.remaining()) < size {
		return nil, ErrPayloadShort
	}
	data := r.buf[r.off : r.off+int(n)]
	r.off += int(size)
	return data, nil
}

func (r *reader) string() (string, bool, error) {
	length, err := r.uint32()
	if err != nil {
		return "", false, err
	}
	if length == 0 {
		return "", true, nil
	}
	data, err := r.padded(length)
	if err != nil {
		return "", false, err
	}
	if data[length-1] != 0 {
		return "", false, ErrStringNotTerminated
	}
	return string(data[:length-1]), false, nil
}

func (r *reader) array() ([]byte, error) {
	length, err := r.uint32()
	if err != nil {
		return nil, err
	}
	data, err := r.padded(length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// ParseArgs decodes payload according to spec. Object references are checked
// against table and new_id arguments are allocated in table once the whole
// payload decoded cleanly. version is the sender's version, inherited by typed
// new objects. It returns the arguments and the number of fds consumed from
// the front of fds.
func ParseArgs(spec *MessageSpec, table ObjectTable, version uint32, payload []byte, fds []int) ([]Arg, int, error) {
	r := &reader{buf: payload}
	args := make([]Arg, 0, len(spec.Args))
	usedFDs := 0
	fail := func(as ArgSpec, err error) ([]Arg, int, error) {
		return nil, 0, &DecodeError{Message: spec.Name, Arg: as.Name, Err: err}
	}

	for _, as := range spec.Args {
		switch as.Kind {
		case ArgInt:
			v, err := r.uint32()
			if err != nil {
				return fail(as, err)
			}
			args = append(args, IntArg(int32(v)))
		case ArgUint:
			v, err := r.uint32()
			if err != nil {
				return fail(as, err)
			}
			args = append(args, UintArg(v))
		case ArgFixed:
			v, err := r.uint32()
			if err != nil {
				return fail(as, err)
			}
			args = append(args, FixedArg(Fixed(int32(v))))
		case ArgString:
			s, null, err := r.string()
			if err != nil {
				return fail(as, err)
			}
			if null {
				if !as.Nullable {
					return fail(as, ErrNullArgument)
				}
				args = append(args, NullStringArg())
				continue
			}
			args = append(args, StringArg(s))
		case ArgObject:
			id, err := r.uint32()
			if err != nil {
				return fail(as, err)
			}
			if id == 0 {
				if !as.Nullable {
					return fail(as, ErrNullArgument)
				}
				args = append(args, ObjectArg(0))
				continue
			}
			iface, ok := table.InterfaceOf(id)
			if !ok {
				return fail(as, ErrUnknownObject)
			}
			if as.Interface != Untyped && iface != as.Interface {
				return fail(as, ErrObjectInterface)
			}
			args = append(args, ObjectArg(id))
		case ArgNewID:
			a := Arg{Kind: ArgNewID, Interface: as.Interface, Version: version}
			if as.Interface == Untyped {
				name, null, err := r.string()
				if err != nil {
					return fail(as, err)
				}
				if null {
					return fail(as, ErrNullArgument)
				}
				v, err := r.uint32()
				if err != nil {
					return fail(as, err)
				}
				a.IfaceName = name
				a.Version = v
			}
			id, err := r.uint32()
			if err != nil {
				return fail(as, err)
			}
			if id < MinClientObjectID || id > MaxClientObjectID {
				return fail(as, ErrInvalidNewID)
			}
			if _, taken := table.InterfaceOf(id); taken {
				return fail(as, ErrInvalidNewID)
			}
			for _, prev := range args {
				if prev.Kind == ArgNewID && prev.Uint == id {
					return fail(as, ErrInvalidNewID)
				}
			}
			a.Uint = id
			args = append(args, a)
		case ArgArray:
			data, err := r.array()
			if err != nil {
				return fail(as, err)
			}
			args = append(args, ArrayArg(data))
		case ArgFD:
			if usedFDs >= len(fds) {
				return fail(as, ErrMissingFD)
			}
			args = append(args, FDArg(fds[usedFDs]))
			usedFDs++
		default:
			return fail(as, ErrArgumentKind)
		}
	}
	if r.remaining() != 0 {
		return nil, 0, &DecodeError{Message: spec.Name, Err: ErrTrailingBytes}
	}

	for i, a := range args {
		if a.Kind != ArgNewID {
			continue
		}
		if err := table.Allocate(a.Uint, a.Interface, a.Version); err != nil {
			return nil, 0, &DecodeError{Message: spec.Name, Arg: spec.Args[i].Name, Err: fmt.Errorf("%w: %v", ErrInvalidNewID, err)}
		}
	}
	return args, usedFDs, nil
}

type writer struct {
	buf []byte
}

func (w *writer) uint32(v uint32) {
	w.buf = hostOrder.AppendUint32(w.buf, v)
}

func (w *writer) padded(data []byte) {
	w.buf = append(w.buf, data...)
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) string(s string) {
	w.uint32(uint32(len(s) + 1))
	data := make([]byte, len(s)+1)
	copy(data, s)
	w.padded(data)
}

// SerializeArgs encodes args according to spec, returning the padded payload
// and the descriptors to send alongside it in order.
func SerializeArgs(spec *MessageSpec, args []Arg) ([]byte, []int, error) {
	if len(args) != len(spec.Args) {
		return nil, nil, &DecodeError{Message: spec.Name, Err: ErrArgumentCount}
	}
	w := &writer{buf: make([]byte, 0, 4*len(args))}
	var fds []int
	for i, as := range spec.Args {
		a := args[i]
		if a.Kind != as.Kind {
			return nil, nil, &DecodeError{Message: spec.Name, Arg: as.Name, Err: ErrArgumentKind}
		}
		switch as.Kind {
		case ArgInt:
			w.uint32(uint32(a.Int))
		case ArgUint:
			w.uint32(a.Uint)
		case ArgFixed:
			w.uint32(uint32(int32(a.Fixed)))
		case ArgString:
			if a.Null {
				if !as.Nullable {
					return nil, nil, &DecodeError{Message: spec.Name, Arg: as.Name, Err: ErrNullArgument}
				}
				w.uint32(0)
				continue
			}
			w.string(a.String)
		case ArgObject:
			if a.Uint == 0 && !as.Nullable {
				return nil, nil, &DecodeError{Message: spec.Name, Arg: as.Name, Err: ErrNullArgument}
			}
			w.uint32(a.Uint)
		case ArgNewID:
			if as.Interface == Untyped {
				w.string(a.IfaceName)
				w.uint32(a.Version)
			}
			w.uint32(a.Uint)
		case ArgArray:
			w.uint32(uint32(len(a.Array)))
			w.padded(a.Array)
		case ArgFD:
			fds = append(fds, a.FD)
		}
	}
	if HeaderSize+len(w.buf) > MaxMessageSize {
		return nil, nil, &DecodeError{Message: spec.Name, Err: ErrSizeOutOfRange}
	}
	return w.buf, fds, nil
}
