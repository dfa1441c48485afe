// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package launcher

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEnvironReplacesDisplayVariables(t *testing.T) {
	env := Environ([]string{"HOME=/home/x", "WAYLAND_DISPLAY=wayland-1", "XDG_RUNTIME_DIR=/old"}, "/run/user/1000/wayland-texel-0")
	joined := strings.Join(env, "\n")
	if strings.Contains(joined, "wayland-1") || strings.Contains(joined, "/old") {
		t.Fatalf("stale values kept: %v", env)
	}
	if !strings.Contains(joined, "WAYLAND_DISPLAY=wayland-texel-0") || !strings.Contains(joined, "XDG_RUNTIME_DIR=/run/user/1000") {
		t.Fatalf("display variables missing: %v", env)
	}
	if !strings.Contains(joined, "HOME=/home/x") {
		t.Fatalf("unrelated variables dropped: %v", env)
	}
}

func TestLaunchEnvironmentVisibleToClient(t *testing.T) {
	if _, err := exec.LookPath("env"); err != nil {
		t.Skip("env not available")
	}
	var out syncBuffer
	c, err := Launch(context.Background(), "env", "/tmp/texel-sock", log.New(&out, "", 0))
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("env failed: %v", err)
	}
	if !strings.Contains(out.String(), "[env] WAYLAND_DISPLAY=texel-sock") || !strings.Contains(out.String(), "launcher: env exited: ok") {
		t.Fatalf("client output missing display: %q", out.String())
	}
}

func TestStopTerminatesClient(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	c, err := Launch(context.Background(), "sleep 30", "/tmp/texel-sock", log.New(&syncBuffer{}, "", 0))
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	start := time.Now()
	err = c.Stop(2 * time.Second)
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error from signalled client, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("stop took too long")
	}
}

func TestLaunchEmptyCommand(t *testing.T) {
	if _, err := Launch(context.Background(), "   ", "/tmp/x", nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}
