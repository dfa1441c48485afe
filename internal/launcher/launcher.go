// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/launcher/launcher.go
// Summary: Starts display clients under a pty pointed at the compositor socket.
// Usage: cmd/texelway --exec runs each command through Launch once the socket is listening.
// Notes: Client output is relayed line by line to the logger so it never corrupts a terminal presenter.

package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ErrEmptyCommand is returned when no program was given.
var ErrEmptyCommand = errors.New("launcher: empty command")

// Client is a running display client.
type Client struct {
	name   string
	cmd    *exec.Cmd
	pty    *os.File
	done   chan struct{}
	relay  sync.WaitGroup
	err    error
	logger *log.Logger
}

// Environ returns base with WAYLAND_DISPLAY and XDG_RUNTIME_DIR pointing at
// socketPath. Existing values are replaced.
func Environ(base []string, socketPath string) []string {
	out := make([]string, 0, len(base)+3)
	for _, kv := range base {
		if strings.HasPrefix(kv, "WAYLAND_DISPLAY=") || strings.HasPrefix(kv, "XDG_RUNTIME_DIR=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out,
		"WAYLAND_DISPLAY="+filepath.Base(socketPath),
		"XDG_RUNTIME_DIR="+filepath.Dir(socketPath),
	)
}

// Launch runs command (split on whitespace) under a new pty. The client is
// killed when ctx is cancelled.
func Launch(ctx context.Context, command, socketPath string, logger *log.Logger) (*Client, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	if logger == nil {
		logger = log.Default()
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Env = Environ(os.Environ(), socketPath)

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("launcher: start %s: %w", fields[0], err)
	}
	if err := pty.Setsize(f, &pty.Winsize{Rows: 24, Cols: 80}); err != nil {
		logger.Printf("launcher: %s: set pty size: %v", fields[0], err)
	}
	c := &Client{
		name:   filepath.Base(fields[0]),
		cmd:    cmd,
		pty:    f,
		done:   make(chan struct{}),
		logger: logger,
	}
	c.relay.Add(1)
	go c.relayOutput()
	go c.wait()
	logger.Printf("launcher: started %s pid=%d", c.name, cmd.Process.Pid)
	return c, nil
}

func (c *Client) relayOutput() {
	defer c.relay.Done()
	scanner := bufio.NewScanner(c.pty)
	for scanner.Scan() {
		c.logger.Printf("[%s] %s", c.name, strings.TrimRight(scanner.Text(), "\r"))
	}
}

func (c *Client) wait() {
	err := c.cmd.Wait()
	// The pty reader sees EIO once the child and its descendants are gone.
	c.relay.Wait()
	c.pty.Close()
	c.err = err
	c.logger.Printf("launcher: %s exited: %v", c.name, errOrOK(err))
	close(c.done)
}

func errOrOK(err error) any {
	if err == nil {
		return "ok"
	}
	return err
}

// Pid is the client's process id.
func (c *Client) Pid() int { return c.cmd.Process.Pid }

// Done is closed once the client exited and its output was relayed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Wait blocks until the client exits and returns its exit error.
func (c *Client) Wait() error {
	<-c.done
	return c.err
}

// Stop asks the client to terminate and kills it after grace.
func (c *Client) Stop(grace time.Duration) error {
	select {
	case <-c.done:
		return c.err
	default:
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("launcher: signal %s: %w", c.name, err)
	}
	select {
	case <-c.done:
	case <-time.After(grace):
		c.cmd.Process.Kill()
		<-c.done
	}
	return c.err
}
