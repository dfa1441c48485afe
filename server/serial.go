// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: server/serial.go
// Summary: Process-wide serial numbers for events clients later acknowledge.

package server

// SerialAllocator hands out strictly increasing serials. Zero is never
// issued so it can mean "no serial" in client requests.
type SerialAllocator struct {
	last uint32
}

// Next returns a fresh serial.
func (a *SerialAllocator) Next() uint32 {
	a.last++
	if a.last == 0 {
		a.last = 1
	}
	return a.last
}

// Last returns the most recently issued serial, or 0 if none was issued.
func (a *SerialAllocator) Last() uint32 {
	return a.last
}
