// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/store.go
// Summary: First-run and reload logic for the system config store.

package config

import (
	"encoding/json"
	"log"

	"github.com/framegrace/texelway/defaults"
)

func loadSystemLocked() error {
	path, err := systemConfigPath()
	if err != nil {
		log.Printf("Config: Failed to resolve system config path: %v", err)
		system = make(Config)
		applySystemDefaults(system)
		return err
	}

	cfg, exists, readErr := readConfig(path)
	if readErr != nil {
		log.Printf("Config: Failed to read system config %s: %v", path, readErr)
		cfg = make(Config)
	}

	if !exists || len(cfg) == 0 {
		if def := defaultSystemConfig(); def != nil && readErr == nil {
			cfg = def
		}
		applySystemDefaults(cfg)
		if readErr == nil {
			if err := writeConfig(path, cfg); err != nil {
				log.Printf("Config: Failed to write default system config: %v", err)
				readErr = err
			}
		}
	} else {
		applySystemDefaults(cfg)
	}

	system = cfg
	if readErr == nil && exists {
		log.Printf("Config: Loaded system config from %s", path)
	}
	return readErr
}

// defaultSystemConfig parses the embedded texelway.json.
func defaultSystemConfig() Config {
	var cfg Config
	if err := json.Unmarshal(defaults.SystemConfig(), &cfg); err != nil {
		log.Printf("Config: Embedded defaults are invalid: %v", err)
		return nil
	}
	return cfg
}
