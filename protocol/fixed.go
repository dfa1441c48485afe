// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/fixed.go
// Summary: Signed 24.8 fixed-point numbers used for pointer coordinates.

package protocol

import "math"

// Fixed is a signed 24.8 fixed-point value.
type Fixed int32

const fixedScale = 256

// FixedFromInt converts an integer. Integral values round-trip exactly.
func FixedFromInt(v int) Fixed {
	return Fixed(int32(v) * fixedScale)
}

// FixedFromFloat converts a float, rounding to the nearest 1/256.
func FixedFromFloat(v float64) Fixed {
	return Fixed(int32(math.Round(v * fixedScale)))
}

// Int truncates toward zero.
func (f Fixed) Int() int {
	return int(int32(f) / fixedScale)
}

func (f Fixed) Float() float64 {
	return float64(f) / fixedScale
}
