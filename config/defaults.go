// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/defaults.go
// Summary: Default values for the system configuration.
// Notes: Keep in sync with defaults/texelway.json; these fill keys a user file leaves out.

package config

func applySystemDefaults(cfg Config) {
	if cfg == nil {
		return
	}
	cfg.RegisterDefaults("server", Section{
		"socket":           "",
		"poll_interval_ms": 16,
		"max_clients":      0,
		"trace_db":         "",
	})
	cfg.RegisterDefaults("input", Section{
		"backend":     "auto",
		"sensitivity": 1.0,
	})
	cfg.RegisterDefaults("output", Section{
		"width":              1280,
		"height":             720,
		"refresh_mhz":        60000,
		"physical_width_mm":  0,
		"physical_height_mm": 0,
		"make":               "texelway",
		"model":              "virtual",
	})
	cfg.RegisterDefaults("keyboard", Section{
		"repeat_rate":  25,
		"repeat_delay": 600,
	})
}
