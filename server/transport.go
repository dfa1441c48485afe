// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/transport.go
// Summary: Filesystem-bound listening socket for display clients.
// Usage: Listen once at startup; the event loop polls Fd and calls Accept when readable.
// Notes: Sockets are non-blocking and close-on-exec so launched clients do not inherit them.

package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Listener accepts client connections on a unix stream socket.
type Listener struct {
	fd   int
	path string
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/name, falling back to the
// system temp directory when the runtime dir is unset.
func DefaultSocketPath(name string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, name)
}

// Listen binds path, removing a stale socket file left by a previous run.
func Listen(path string) (*Listener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("server: %s exists and is not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("server: remove stale socket: %w", err)
		}
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("server: socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("server: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("server: listen %s: %w", path, err)
	}
	return &Listener{fd: fd, path: path}, nil
}

// Accept returns a pending connection, or -1 when none is waiting.
func (l *Listener) Accept() (int, error) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			return nfd, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ECONNABORTED):
			return -1, nil
		default:
			return -1, fmt.Errorf("server: accept: %w", err)
		}
	}
}

// Fd exposes the socket for polling.
func (l *Listener) Fd() int { return l.fd }

// Path is the filesystem path clients connect to.
func (l *Listener) Path() string { return l.path }

// Close stops listening and removes the socket file.
func (l *Listener) Close() error {
	err := unix.Close(l.fd)
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
