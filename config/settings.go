// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/settings.go
// Summary: Typed view of the texelway sections.
// Usage: cmd/texelway calls LoadSettings and maps the result onto server and compositor options.

package config

import "time"

// Settings is the decoded system configuration.
type Settings struct {
	Server   ServerSettings
	Input    InputSettings
	Output   OutputSettings
	Keyboard KeyboardSettings
}

type ServerSettings struct {
	// Socket is the listening path; empty selects the runtime-dir default.
	Socket       string
	PollInterval time.Duration
	MaxClients   int
	// TraceDB enables the protocol journal when set.
	TraceDB string
}

type InputSettings struct {
	// Backend is "auto", "terminal" or "headless".
	Backend     string
	Sensitivity float64
}

type OutputSettings struct {
	Width, Height    int
	RefreshMHz       int
	PhysicalWidthMM  int
	PhysicalHeightMM int
	Make, Model      string
}

type KeyboardSettings struct {
	RepeatRate  int
	RepeatDelay int
}

// SettingsFrom decodes cfg. Missing or mistyped keys fall back to defaults.
func SettingsFrom(cfg Config) Settings {
	cfg = Clone(cfg)
	if cfg == nil {
		cfg = make(Config)
	}
	applySystemDefaults(cfg)
	return Settings{
		Server: ServerSettings{
			Socket:       cfg.GetString("server", "socket", ""),
			PollInterval: time.Duration(cfg.GetInt("server", "poll_interval_ms", 16)) * time.Millisecond,
			MaxClients:   cfg.GetInt("server", "max_clients", 0),
			TraceDB:      cfg.GetString("server", "trace_db", ""),
		},
		Input: InputSettings{
			Backend:     cfg.GetString("input", "backend", "auto"),
			Sensitivity: cfg.GetFloat("input", "sensitivity", 1),
		},
		Output: OutputSettings{
			Width:            cfg.GetInt("output", "width", 1280),
			Height:           cfg.GetInt("output", "height", 720),
			RefreshMHz:       cfg.GetInt("output", "refresh_mhz", 60000),
			PhysicalWidthMM:  cfg.GetInt("output", "physical_width_mm", 0),
			PhysicalHeightMM: cfg.GetInt("output", "physical_height_mm", 0),
			Make:             cfg.GetString("output", "make", "texelway"),
			Model:            cfg.GetString("output", "model", "virtual"),
		},
		Keyboard: KeyboardSettings{
			RepeatRate:  cfg.GetInt("keyboard", "repeat_rate", 25),
			RepeatDelay: cfg.GetInt("keyboard", "repeat_delay", 600),
		},
	}
}

// LoadSettings reads path when given, otherwise the system config.
func LoadSettings(path string) (Settings, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		if err != nil {
			return Settings{}, err
		}
		return SettingsFrom(cfg), nil
	}
	cfg := System()
	return SettingsFrom(cfg), Err()
}
