// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func resetStore() {
	once = sync.Once{}
	system = nil
	loadErr = nil
}

func TestSystemDefaultsWritten(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	cfg := System()
	if got := cfg.GetInt("output", "width", 0); got != 1280 {
		t.Fatalf("expected default width 1280, got %d", got)
	}

	path, err := systemConfigPath()
	if err != nil {
		t.Fatalf("systemConfigPath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read system config: %v", err)
	}

	var disk Config
	if err := json.Unmarshal(data, &disk); err != nil {
		t.Fatalf("unmarshal system config: %v", err)
	}
	if disk.Section("keyboard") == nil {
		t.Fatalf("expected keyboard section to be present")
	}
}

func TestSaveSystemWritesUpdates(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	SetSystem(Config{
		"server": map[string]interface{}{"socket": "/tmp/texel-test-0"},
	})
	if err := SaveSystem(); err != nil {
		t.Fatalf("SaveSystem: %v", err)
	}
	if err := Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	cfg := System()
	if got := cfg.GetString("server", "socket", ""); got != "/tmp/texel-test-0" {
		t.Fatalf("expected saved socket, got %q", got)
	}
	if got := cfg.GetInt("server", "poll_interval_ms", 0); got != 16 {
		t.Fatalf("expected default poll interval filled in, got %d", got)
	}
}

func TestRegisterDefaultsKeepsUserValues(t *testing.T) {
	cfg := Config{"input": map[string]interface{}{"sensitivity": 2.5}}
	applySystemDefaults(cfg)
	if got := cfg.GetFloat("input", "sensitivity", 0); got != 2.5 {
		t.Fatalf("user sensitivity overwritten: %v", got)
	}
	if got := cfg.GetString("input", "backend", ""); got != "auto" {
		t.Fatalf("missing backend default, got %q", got)
	}
}

func TestLoadSettingsFromYAML(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	path := filepath.Join(t.TempDir(), "texelway.yaml")
	data := []byte(`server:
  socket: /run/texel-9
  poll_interval_ms: 8
  trace_db: /tmp/trace.db
input:
  backend: headless
  sensitivity: 1.5
output:
  width: 640
  height: 480
keyboard:
  repeat_rate: 40
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.Server.Socket != "/run/texel-9" || s.Server.PollInterval != 8*time.Millisecond || s.Server.TraceDB != "/tmp/trace.db" {
		t.Fatalf("unexpected server settings %+v", s.Server)
	}
	if s.Input.Backend != "headless" || s.Input.Sensitivity != 1.5 {
		t.Fatalf("unexpected input settings %+v", s.Input)
	}
	if s.Output.Width != 640 || s.Output.Height != 480 || s.Output.RefreshMHz != 60000 || s.Output.Make != "texelway" {
		t.Fatalf("unexpected output settings %+v", s.Output)
	}
	if s.Keyboard.RepeatRate != 40 || s.Keyboard.RepeatDelay != 600 {
		t.Fatalf("unexpected keyboard settings %+v", s.Keyboard)
	}
	if got := System().GetInt("output", "width", 0); got != 640 {
		t.Fatalf("explicit file did not become the system config")
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWriteConfigRoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yml")
	if err := writeConfig(path, Config{"output": Section{"model": "panel"}}); err != nil {
		t.Fatalf("writeConfig: %v", err)
	}
	cfg, exists, err := readConfig(path)
	if err != nil || !exists {
		t.Fatalf("readConfig: exists=%v err=%v", exists, err)
	}
	if got := cfg.GetString("output", "model", ""); got != "panel" {
		t.Fatalf("expected model panel, got %q", got)
	}
}

func TestTypedGettersAcceptStrings(t *testing.T) {
	cfg := Config{"server": map[string]interface{}{
		"max_clients": "12",
		"ratio":       "0.25",
		"width":       640.9,
	}}
	if cfg.GetInt("server", "max_clients", 0) != 12 {
		t.Fatalf("GetInt string")
	}
	if cfg.GetInt("server", "width", 0) != 640 {
		t.Fatalf("GetInt fraction not truncated")
	}
	if cfg.GetFloat("server", "ratio", 0) != 0.25 {
		t.Fatalf("GetFloat string")
	}
	if cfg.GetInt("missing", "x", 7) != 7 {
		t.Fatalf("default not returned")
	}
}
