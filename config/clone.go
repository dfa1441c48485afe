// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/clone.go
// Summary: Clone helpers for config maps.

package config

// Clone copies the config and each of its sections; values inside a
// section are shared.
func Clone(cfg Config) Config {
	if cfg == nil {
		return nil
	}
	clone := make(Config, len(cfg))
	for name, raw := range cfg {
		if section := cfg.Section(name); section != nil {
			out := make(Section, len(section))
			for key, value := range section {
				out[key] = value
			}
			clone[name] = out
			continue
		}
		clone[name] = raw
	}
	return clone
}
