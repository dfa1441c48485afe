// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/protocol.go
// Summary: Implements message framing for the display wire protocol.
// Usage: Shared by the server transport and tests to read and write frames.
// Notes: Keep changes backward-compatible; the header layout is fixed by clients.

package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// HeaderSize is the fixed size of every frame header in bytes.
	HeaderSize = 8
	// MaxMessageSize bounds a single frame, header included.
	MaxMessageSize = 4096
	// MaxFDs bounds the file descriptors queued for one client at a time.
	MaxFDs = 16
)

// hostOrder is the byte order used on the wire. Both peers share a host, so
// the protocol uses native endianness.
var hostOrder = binary.NativeEndian

// Header describes the fixed portion of every frame exchanged over the wire.
type Header struct {
	Sender uint32
	Opcode uint16
	Size   uint16
}

// RawMessage is one framed message as received from a client. FDs holds the
// descriptors queued on the connection when the frame was read; the codec
// consumes them front to back.
type RawMessage struct {
	Header  Header
	Payload []byte
	FDs     []int
}

var (
	ErrHeaderShort    = errors.New("protocol: header shorter than 8 bytes")
	ErrSizeOutOfRange = errors.New("protocol: declared size out of range")
	ErrSizeUnaligned  = errors.New("protocol: declared size not a multiple of 4")
	ErrShortPayload   = errors.New("protocol: payload shorter than declared length")
)

// DecodeHeader parses the 8-byte frame header.
func DecodeHeader(b []byte) (Header, error) {
	var hdr Header
	if len(b) < HeaderSize {
		return hdr, ErrHeaderShort
	}
	hdr.Sender = hostOrder.Uint32(b[0:4])
	hdr.Opcode = hostOrder.Uint16(b[4:6])
	hdr.Size = hostOrder.Uint16(b[6:8])
	return hdr, nil
}

// EncodeHeader writes hdr into the first 8 bytes of b.
func EncodeHeader(b []byte, hdr Header) {
	hostOrder.PutUint32(b[0:4], hdr.Sender)
	hostOrder.PutUint16(b[4:6], hdr.Opcode)
	hostOrder.PutUint16(b[6:8], hdr.Size)
}

// Validate checks the declared size against the framing limits.
func (h Header) Validate() error {
	if h.Size < HeaderSize || int(h.Size) > MaxMessageSize {
		return ErrSizeOutOfRange
	}
	if h.Size%4 != 0 {
		return ErrSizeUnaligned
	}
	return nil
}

// EncodeMessage frames payload as a message from sender. The payload must
// already be padded to a 4-byte boundary.
func EncodeMessage(sender uint32, opcode uint16, payload []byte) ([]byte, error) {
	size := HeaderSize + len(payload)
	if size > MaxMessageSize {
		return nil, ErrSizeOutOfRange
	}
	if size%4 != 0 {
		return nil, ErrSizeUnaligned
	}
	buf := make([]byte, size)
	EncodeHeader(buf, Header{Sender: sender, Opcode: opcode, Size: uint16(size)})
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WriteMessage serialises a frame to w. File descriptors are not carried by
// plain writers; the socket transport sends them as ancillary data.
func WriteMessage(w io.Writer, sender uint32, opcode uint16, payload []byte) error {
	frame, err := EncodeMessage(sender, opcode, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadMessage reads one frame from r. It is used by tests and tools that
// speak the protocol over plain streams without descriptor passing.
func ReadMessage(r io.Reader) (RawMessage, error) {
	var msg RawMessage
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return msg, err
	}
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return msg, err
	}
	if err := hdr.Validate(); err != nil {
		return msg, err
	}
	msg.Header = hdr
	msg.Payload = make([]byte, int(hdr.Size)-HeaderSize)
	if len(msg.Payload) > 0 {
		if _, err := io.ReadFull(r, msg.Payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return msg, ErrShortPayload
			}
			return msg, err
		}
	}
	return msg, nil
}
