// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: defaults/embedded.go
// Summary: Embedded default configuration written on first run.

package defaults

import _ "embed"

//go:embed texelway.json
var systemConfig []byte

// SystemConfig returns the embedded texelway.json.
func SystemConfig() []byte {
	return append([]byte(nil), systemConfig...)
}
