// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/keymap.go
// Summary: Modifier tracking for evdev key codes plus the xkb keymap handed to clients.
// Usage: The seat asks BasicKeymap whether a key changed modifier state and forwards the snapshot.
// Notes: Layout compilation is left to clients; the keymap text only names standard includes.

package backend

import (
	_ "embed"
	"fmt"

	"golang.org/x/sys/unix"
)

//go:embed keymap.xkb
var keymapText string

// Modifier masks matching the standard xkb modifier indices.
const (
	ModShift   uint32 = 1 << 0
	ModLock    uint32 = 1 << 1
	ModControl uint32 = 1 << 2
	ModMod1    uint32 = 1 << 3
	ModMod4    uint32 = 1 << 6
)

// Evdev codes for the modifier keys.
const (
	KeyLeftCtrl   uint32 = 29
	KeyLeftShift  uint32 = 42
	KeyRightShift uint32 = 54
	KeyLeftAlt    uint32 = 56
	KeyCapsLock   uint32 = 58
	KeyRightCtrl  uint32 = 97
	KeyRightAlt   uint32 = 100
	KeyLeftMeta   uint32 = 125
	KeyRightMeta  uint32 = 126
)

var modifierKeys = map[uint32]uint32{
	KeyLeftShift:  ModShift,
	KeyRightShift: ModShift,
	KeyLeftCtrl:   ModControl,
	KeyRightCtrl:  ModControl,
	KeyLeftAlt:    ModMod1,
	KeyRightAlt:   ModMod1,
	KeyLeftMeta:   ModMod4,
	KeyRightMeta:  ModMod4,
}

// BasicKeymap tracks depressed modifiers per key and caps lock as a locked
// modifier.
type BasicKeymap struct {
	held   map[uint32]bool
	locked uint32
}

// NewBasicKeymap returns a keymap with no modifiers active.
func NewBasicKeymap() *BasicKeymap {
	return &BasicKeymap{held: make(map[uint32]bool)}
}

func (k *BasicKeymap) UpdateKey(keycode uint32, pressed bool) bool {
	before := k.Modifiers()
	if keycode == KeyCapsLock {
		if pressed && !k.held[keycode] {
			k.locked ^= ModLock
		}
		k.held[keycode] = pressed
		return k.Modifiers() != before
	}
	if _, ok := modifierKeys[keycode]; !ok {
		return false
	}
	if pressed {
		k.held[keycode] = true
	} else {
		delete(k.held, keycode)
	}
	return k.Modifiers() != before
}

func (k *BasicKeymap) Modifiers() Modifiers {
	var depressed uint32
	for code, down := range k.held {
		if down {
			depressed |= modifierKeys[code]
		}
	}
	return Modifiers{Depressed: depressed, Locked: k.locked}
}

// KeymapFile writes the keymap text plus a trailing NUL into a sealed memfd.
// The caller owns the returned descriptor.
func (k *BasicKeymap) KeymapFile() (int, uint32, error) {
	data := append([]byte(keymapText), 0)
	fd, err := unix.MemfdCreate("texelway-keymap", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, 0, fmt.Errorf("backend: keymap memfd: %w", err)
	}
	for off := 0; off < len(data); {
		n, err := unix.Pwrite(fd, data[off:], int64(off))
		if err != nil {
			unix.Close(fd)
			return -1, 0, fmt.Errorf("backend: write keymap: %w", err)
		}
		off += n
	}
	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		debugLog.Printf("backend: sealing keymap: %v", err)
	}
	return fd, uint32(len(data)), nil
}
