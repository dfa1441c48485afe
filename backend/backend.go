// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/backend.go
// Summary: Narrow interfaces between the compositor core and its rendering, input and keymap collaborators.
// Usage: cmd/texelway picks implementations; the compositor only sees these interfaces.
// Notes: The core never touches pixel memory directly; it goes through Renderer handles.

package backend

import "errors"

// Opaque renderer handles. Zero is never a valid handle.
type (
	PoolHandle    uint32
	BufferHandle  uint32
	TextureHandle uint32
)

// Pixel formats accepted for shared-memory buffers, using wl_shm codes.
const (
	FormatARGB8888 uint32 = 0
	FormatXRGB8888 uint32 = 1
)

var (
	ErrUnknownHandle = errors.New("backend: unknown handle")
	ErrInvalidFormat = errors.New("backend: unsupported pixel format")
	ErrInvalidStride = errors.New("backend: invalid buffer geometry")
	ErrPoolSize      = errors.New("backend: invalid pool size")
)

// Renderer owns pixel sources and presents composed scenes.
type Renderer interface {
	CreateShmPool(fd int, size int32) (PoolHandle, error)
	ResizeShmPool(pool PoolHandle, size int32) error
	CreateBuffer(pool PoolHandle, offset, width, height, stride int32, format uint32) (BufferHandle, error)
	CreateTextureFromRGBA(width, height int, pixels []byte) (TextureHandle, error)
	DestroyPool(pool PoolHandle)
	DestroyBuffer(buffer BufferHandle)
	DestroyTexture(texture TextureHandle)
	Present(scene Scene) error
}

// Scene is the composed frame handed to the renderer, bottom window first.
type Scene struct {
	Width, Height      int
	Windows            []SceneWindow
	PointerX, PointerY float64
}

// SceneWindow is one mapped window in stacking order.
type SceneWindow struct {
	Buffer  BufferHandle
	X, Y    int
	Width   int
	Height  int
	Title   string
	Focused bool
}

// Presenter displays a scene, for example on a terminal.
type Presenter interface {
	Present(scene Scene) error
}

// Evdev codes for the pointer buttons the compositor interprets.
const (
	BtnLeft   uint32 = 0x110
	BtnRight  uint32 = 0x111
	BtnMiddle uint32 = 0x112
)

// InputEvent is one normalised event produced by an input backend.
type InputEvent interface {
	inputEvent()
}

// KeyPress reports a key transition using evdev key codes.
type KeyPress struct {
	Serial  uint32
	Time    uint32
	Keycode uint32
	Pressed bool
}

// PointerMotion reports relative pointer movement.
type PointerMotion struct {
	Serial    uint32
	Time      uint32
	DX, DY    float64
	DXUnaccel float64
	DYUnaccel float64
}

// PointerButton reports a button transition using evdev button codes.
type PointerButton struct {
	Serial  uint32
	Time    uint32
	Button  uint32
	Pressed bool
}

// StopRequested asks the event loop to exit.
type StopRequested struct{}

func (KeyPress) inputEvent()      {}
func (PointerMotion) inputEvent() {}
func (PointerButton) inputEvent() {}
func (StopRequested) inputEvent() {}

// InputBackend produces input events on a channel drained by the event loop.
type InputBackend interface {
	Events() <-chan InputEvent
	Close() error
}

// Modifiers is the xkb modifier snapshot relayed to focused clients.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// Keymap tracks modifier state for raw key codes.
type Keymap interface {
	// UpdateKey records a key transition and reports whether the modifier
	// snapshot changed.
	UpdateKey(keycode uint32, pressed bool) bool
	Modifiers() Modifiers
	// KeymapFile returns a sealed, readable descriptor holding the xkb v1
	// keymap text and its size including the terminating NUL.
	KeymapFile() (fd int, size uint32, err error)
}
