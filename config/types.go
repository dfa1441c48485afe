// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/types.go
// Summary: Section lookup and the scalar getters Settings reads through.
// Notes: JSON numbers arrive as float64, YAML integers as int; numeric strings are parsed.

package config

import "strconv"

// Section returns the named section or nil if missing.
func (c Config) Section(name string) Section {
	switch v := c[name].(type) {
	case Section:
		return v
	case map[string]interface{}:
		return Section(v)
	}
	return nil
}

// RegisterDefaults fills missing keys of a section, creating it if needed.
func (c Config) RegisterDefaults(name string, defaults Section) {
	if c == nil {
		return
	}
	section := c.Section(name)
	if section == nil {
		section = make(Section, len(defaults))
		c[name] = section
	}
	for key, value := range defaults {
		if _, ok := section[key]; !ok {
			section[key] = value
		}
	}
}

// GetString returns a string setting or fallback.
func (c Config) GetString(section, key, fallback string) string {
	if s, ok := c.Section(section)[key].(string); ok {
		return s
	}
	return fallback
}

// GetFloat returns a numeric setting or fallback.
func (c Config) GetFloat(section, key string, fallback float64) float64 {
	if f, ok := toFloat(c.Section(section)[key]); ok {
		return f
	}
	return fallback
}

// GetInt is GetFloat truncated toward zero.
func (c Config) GetInt(section, key string, fallback int) int {
	if f, ok := toFloat(c.Section(section)[key]); ok {
		return int(f)
	}
	return fallback
}

func toFloat(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
