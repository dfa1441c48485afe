// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/connection.go
// Summary: Per-client socket framing with SCM_RIGHTS descriptor passing.
// Usage: The event loop reads one frame per readable client and flushes queued events each iteration.
// Notes: Writes wait for the peer to drain its buffer, bounded by writeTimeout.

package server

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
)

var (
	ErrShortHeader = errors.New("server: fewer than 8 header bytes available")
	ErrFrameSize   = errors.New("server: frame size does not match declared size")
	ErrTooManyFDs  = errors.New("server: too many file descriptors queued")
	ErrWriteStall  = errors.New("server: client is not draining its socket")

	errNoMessage = errors.New("server: no message ready")
)

const (
	writeTimeoutMs = 1000
	outputLimit    = 16 * protocol.MaxMessageSize
)

// Connection is one client socket. It is owned by the event loop.
type Connection struct {
	fd     int
	client registry.ClientID
	fds    []int
	out    []byte
	outFDs []int
	closed bool

	messages uint64
	misses   uint64
	failures uint64
}

func newConnection(fd int, client registry.ClientID) *Connection {
	return &Connection{fd: fd, client: client}
}

// Client identifies the registry client behind the socket.
func (c *Connection) Client() registry.ClientID { return c.client }

// ReadMessage reads exactly one frame. It returns io.EOF on hang-up and
// errNoMessage when nothing is buffered.
func (c *Connection) ReadMessage() (protocol.RawMessage, error) {
	var hdrBuf [protocol.HeaderSize]byte
	n, err := c.peek(hdrBuf[:])
	if err != nil {
		return protocol.RawMessage{}, err
	}
	if n == 0 {
		return protocol.RawMessage{}, io.EOF
	}
	if n < protocol.HeaderSize {
		return protocol.RawMessage{}, ErrShortHeader
	}
	hdr, err := protocol.DecodeHeader(hdrBuf[:])
	if err != nil {
		return protocol.RawMessage{}, err
	}
	if err := hdr.Validate(); err != nil {
		return protocol.RawMessage{}, err
	}

	frame := make([]byte, hdr.Size)
	oob := make([]byte, unix.CmsgSpace(protocol.MaxFDs*4))
	var oobn, recvFlags int
	for {
		n, oobn, recvFlags, _, err = unix.Recvmsg(c.fd, frame, oob, unix.MSG_DONTWAIT|unix.MSG_CMSG_CLOEXEC)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return protocol.RawMessage{}, fmt.Errorf("server: recvmsg: %w", err)
	}
	if oobn > 0 {
		if err := c.queueFDs(oob[:oobn]); err != nil {
			return protocol.RawMessage{}, err
		}
	}
	if recvFlags&unix.MSG_CTRUNC != 0 {
		return protocol.RawMessage{}, ErrTooManyFDs
	}
	if n != int(hdr.Size) {
		return protocol.RawMessage{}, fmt.Errorf("%w: got %d of %d bytes", ErrFrameSize, n, hdr.Size)
	}
	if len(c.fds) > protocol.MaxFDs {
		return protocol.RawMessage{}, ErrTooManyFDs
	}
	return protocol.RawMessage{Header: hdr, Payload: frame[protocol.HeaderSize:], FDs: c.fds}, nil
}

func (c *Connection) peek(buf []byte) (int, error) {
	for {
		n, _, err := unix.Recvfrom(c.fd, buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, errNoMessage
		case errors.Is(err, unix.ECONNRESET):
			return 0, io.EOF
		default:
			return 0, fmt.Errorf("server: peek: %w", err)
		}
	}
}

func (c *Connection) queueFDs(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("server: control message: %w", err)
	}
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return fmt.Errorf("server: unix rights: %w", err)
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

// takeFDs hands the first n queued descriptors to the caller.
func (c *Connection) takeFDs(n int) []int {
	if n <= 0 {
		return nil
	}
	taken := append([]int(nil), c.fds[:n]...)
	c.fds = c.fds[n:]
	return taken
}

// queue appends a frame for the next flush. Descriptors in fds are owned by
// the connection from here on and closed once sent.
func (c *Connection) queue(frame []byte, fds []int) error {
	if c.closed {
		closeAll(fds)
		return nil
	}
	if len(c.out)+len(frame) > outputLimit || len(c.outFDs)+len(fds) > protocol.MaxFDs {
		if err := c.Flush(); err != nil {
			closeAll(fds)
			return err
		}
	}
	c.out = append(c.out, frame...)
	c.outFDs = append(c.outFDs, fds...)
	return nil
}

// Pending reports whether events are waiting to be flushed.
func (c *Connection) Pending() bool { return len(c.out) > 0 }

// Flush writes all queued events.
func (c *Connection) Flush() error {
	for len(c.out) > 0 {
		var oob []byte
		if len(c.outFDs) > 0 {
			oob = unix.UnixRights(c.outFDs...)
		}
		n, err := unix.SendmsgN(c.fd, c.out, oob, nil, unix.MSG_NOSIGNAL)
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			if err := c.waitWritable(); err != nil {
				return err
			}
			continue
		default:
			return fmt.Errorf("server: sendmsg: %w", err)
		}
		if len(c.outFDs) > 0 {
			closeAll(c.outFDs)
			c.outFDs = c.outFDs[:0]
		}
		c.out = c.out[n:]
	}
	c.out = c.out[:0]
	return nil
}

func (c *Connection) waitWritable() error {
	pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	for {
		n, err := unix.Poll(pfd, writeTimeoutMs)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("server: poll for write: %w", err)
		}
		if n == 0 {
			return ErrWriteStall
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
			return io.ErrClosedPipe
		}
		return nil
	}
}

// Close releases the socket and any descriptors still queued either way.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	closeAll(c.fds)
	closeAll(c.outFDs)
	c.fds, c.outFDs, c.out = nil, nil, nil
	return unix.Close(c.fd)
}

func closeAll(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}
