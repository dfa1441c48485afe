// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: protocol/interfaces.go
// Summary: Static schemas for the core and xdg-shell interfaces served by texelway.
// Usage: Indexed by InterfaceID; opcodes are positions in the Requests/Events slices.
// Notes: Keep request order identical to the upstream XML, clients encode opcodes by index.

package protocol

var interfaces = [interfaceCount]*Interface{
	WlDisplay: {
		ID: WlDisplay, Name: "wl_display", Version: 1,
		Requests: []MessageSpec{
			msg("sync", newIDArg("callback", WlCallback)),
			msg("get_registry", newIDArg("registry", WlRegistry)),
		},
		Events: []MessageSpec{
			msg("error", objectArg("object_id", Untyped), uintArg("code"), stringArg("message")),
			msg("delete_id", uintArg("id")),
		},
	},
	WlRegistry: {
		ID: WlRegistry, Name: "wl_registry", Version: 1,
		Requests: []MessageSpec{
			msg("bind", uintArg("name"), newIDArg("id", Untyped)),
		},
		Events: []MessageSpec{
			msg("global", uintArg("name"), stringArg("interface"), uintArg("version")),
			msg("global_remove", uintArg("name")),
		},
	},
	WlCallback: {
		ID: WlCallback, Name: "wl_callback", Version: 1,
		Events: []MessageSpec{
			destructor("done", uintArg("callback_data")),
		},
	},
	WlCompositor: {
		ID: WlCompositor, Name: "wl_compositor", Version: 4,
		Requests: []MessageSpec{
			msg("create_surface", newIDArg("id", WlSurface)),
			msg("create_region", newIDArg("id", WlRegion)),
		},
	},
	WlRegion: {
		ID: WlRegion, Name: "wl_region", Version: 1,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("add", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
			msg("subtract", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
		},
	},
	WlSurface: {
		ID: WlSurface, Name: "wl_surface", Version: 4,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("attach", nullable(objectArg("buffer", WlBuffer)), intArg("x"), intArg("y")),
			msg("damage", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
			msg("frame", newIDArg("callback", WlCallback)),
			msg("set_opaque_region", nullable(objectArg("region", WlRegion))),
			msg("set_input_region", nullable(objectArg("region", WlRegion))),
			msg("commit"),
			since(2, msg("set_buffer_transform", intArg("transform"))),
			since(3, msg("set_buffer_scale", intArg("scale"))),
			since(4, msg("damage_buffer", intArg("x"), intArg("y"), intArg("width"), intArg("height"))),
		},
		Events: []MessageSpec{
			msg("enter", objectArg("output", WlOutput)),
			msg("leave", objectArg("output", WlOutput)),
		},
	},
	WlShm: {
		ID: WlShm, Name: "wl_shm", Version: 1,
		Requests: []MessageSpec{
			msg("create_pool", newIDArg("id", WlShmPool), fdArg("fd"), intArg("size")),
		},
		Events: []MessageSpec{
			msg("format", uintArg("format")),
		},
	},
	WlShmPool: {
		ID: WlShmPool, Name: "wl_shm_pool", Version: 1,
		Requests: []MessageSpec{
			msg("create_buffer", newIDArg("id", WlBuffer), intArg("offset"), intArg("width"),
				intArg("height"), intArg("stride"), uintArg("format")),
			destructor("destroy"),
			msg("resize", intArg("size")),
		},
	},
	WlBuffer: {
		ID: WlBuffer, Name: "wl_buffer", Version: 1,
		Requests: []MessageSpec{
			destructor("destroy"),
		},
		Events: []MessageSpec{
			msg("release"),
		},
	},
	WlSeat: {
		ID: WlSeat, Name: "wl_seat", Version: 5,
		Requests: []MessageSpec{
			msg("get_pointer", newIDArg("id", WlPointer)),
			msg("get_keyboard", newIDArg("id", WlKeyboard)),
			msg("get_touch", newIDArg("id", WlTouch)),
			since(5, destructor("release")),
		},
		Events: []MessageSpec{
			msg("capabilities", uintArg("capabilities")),
			since(2, msg("name", stringArg("name"))),
		},
	},
	WlPointer: {
		ID: WlPointer, Name: "wl_pointer", Version: 5,
		Requests: []MessageSpec{
			msg("set_cursor", uintArg("serial"), nullable(objectArg("surface", WlSurface)),
				intArg("hotspot_x"), intArg("hotspot_y")),
			since(3, destructor("release")),
		},
		Events: []MessageSpec{
			msg("enter", uintArg("serial"), objectArg("surface", WlSurface),
				fixedArg("surface_x"), fixedArg("surface_y")),
			msg("leave", uintArg("serial"), objectArg("surface", WlSurface)),
			msg("motion", uintArg("time"), fixedArg("surface_x"), fixedArg("surface_y")),
			msg("button", uintArg("serial"), uintArg("time"), uintArg("button"), uintArg("state")),
			msg("axis", uintArg("time"), uintArg("axis"), fixedArg("value")),
			since(5, msg("frame")),
		},
	},
	WlKeyboard: {
		ID: WlKeyboard, Name: "wl_keyboard", Version: 5,
		Requests: []MessageSpec{
			since(3, destructor("release")),
		},
		Events: []MessageSpec{
			msg("keymap", uintArg("format"), fdArg("fd"), uintArg("size")),
			msg("enter", uintArg("serial"), objectArg("surface", WlSurface), arrayArg("keys")),
			msg("leave", uintArg("serial"), objectArg("surface", WlSurface)),
			msg("key", uintArg("serial"), uintArg("time"), uintArg("key"), uintArg("state")),
			msg("modifiers", uintArg("serial"), uintArg("mods_depressed"), uintArg("mods_latched"),
				uintArg("mods_locked"), uintArg("group")),
			since(4, msg("repeat_info", intArg("rate"), intArg("delay"))),
		},
	},
	WlTouch: {
		ID: WlTouch, Name: "wl_touch", Version: 5,
		Requests: []MessageSpec{
			since(3, destructor("release")),
		},
	},
	WlOutput: {
		ID: WlOutput, Name: "wl_output", Version: 2,
		Requests: []MessageSpec{
			since(3, destructor("release")),
		},
		Events: []MessageSpec{
			msg("geometry", intArg("x"), intArg("y"), intArg("physical_width"), intArg("physical_height"),
				intArg("subpixel"), stringArg("make"), stringArg("model"), intArg("transform")),
			msg("mode", uintArg("flags"), intArg("width"), intArg("height"), intArg("refresh")),
			since(2, msg("done")),
			since(2, msg("scale", intArg("factor"))),
		},
	},
	XdgWmBase: {
		ID: XdgWmBase, Name: "xdg_wm_base", Version: 2,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("create_positioner", newIDArg("id", XdgPositioner)),
			msg("get_xdg_surface", newIDArg("id", XdgSurface), objectArg("surface", WlSurface)),
			msg("pong", uintArg("serial")),
		},
		Events: []MessageSpec{
			msg("ping", uintArg("serial")),
		},
	},
	XdgPositioner: {
		ID: XdgPositioner, Name: "xdg_positioner", Version: 2,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("set_size", intArg("width"), intArg("height")),
			msg("set_anchor_rect", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
			msg("set_anchor", uintArg("anchor")),
			msg("set_gravity", uintArg("gravity")),
			msg("set_constraint_adjustment", uintArg("constraint_adjustment")),
			msg("set_offset", intArg("x"), intArg("y")),
			since(3, msg("set_reactive")),
			since(3, msg("set_parent_size", intArg("parent_width"), intArg("parent_height"))),
			since(3, msg("set_parent_configure", uintArg("serial"))),
		},
	},
	XdgSurface: {
		ID: XdgSurface, Name: "xdg_surface", Version: 2,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("get_toplevel", newIDArg("id", XdgToplevel)),
			msg("get_popup", newIDArg("id", XdgPopup), nullable(objectArg("parent", XdgSurface)),
				objectArg("positioner", XdgPositioner)),
			msg("set_window_geometry", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
			msg("ack_configure", uintArg("serial")),
		},
		Events: []MessageSpec{
			msg("configure", uintArg("serial")),
		},
	},
	XdgToplevel: {
		ID: XdgToplevel, Name: "xdg_toplevel", Version: 2,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("set_parent", nullable(objectArg("parent", XdgToplevel))),
			msg("set_title", stringArg("title")),
			msg("set_app_id", stringArg("app_id")),
			msg("show_window_menu", objectArg("seat", WlSeat), uintArg("serial"), intArg("x"), intArg("y")),
			msg("move", objectArg("seat", WlSeat), uintArg("serial")),
			msg("resize", objectArg("seat", WlSeat), uintArg("serial"), uintArg("edges")),
			msg("set_max_size", intArg("width"), intArg("height")),
			msg("set_min_size", intArg("width"), intArg("height")),
			msg("set_maximized"),
			msg("unset_maximized"),
			msg("set_fullscreen", nullable(objectArg("output", WlOutput))),
			msg("unset_fullscreen"),
			msg("set_minimized"),
		},
		Events: []MessageSpec{
			msg("configure", intArg("width"), intArg("height"), arrayArg("states")),
			msg("close"),
		},
	},
	XdgPopup: {
		ID: XdgPopup, Name: "xdg_popup", Version: 2,
		Requests: []MessageSpec{
			destructor("destroy"),
			msg("grab", objectArg("seat", WlSeat), uintArg("serial")),
		},
		Events: []MessageSpec{
			msg("configure", intArg("x"), intArg("y"), intArg("width"), intArg("height")),
			msg("popup_done"),
		},
	},
}

// wl_display error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// wl_shm error codes and the pixel formats served by texelway.
const (
	ShmErrorInvalidFormat uint32 = 0
	ShmErrorInvalidStride uint32 = 1
	ShmErrorInvalidFD     uint32 = 2

	ShmFormatARGB8888 uint32 = 0
	ShmFormatXRGB8888 uint32 = 1
)

// wl_surface error codes.
const (
	SurfaceErrorInvalidScale     uint32 = 0
	SurfaceErrorInvalidTransform uint32 = 1
	SurfaceErrorInvalidSize      uint32 = 2
)

// wl_seat capabilities.
const (
	SeatCapabilityPointer  uint32 = 1
	SeatCapabilityKeyboard uint32 = 2
	SeatCapabilityTouch    uint32 = 4
)

// Pointer button and key states.
const (
	ButtonStateReleased uint32 = 0
	ButtonStatePressed  uint32 = 1

	KeyStateReleased uint32 = 0
	KeyStatePressed  uint32 = 1

	KeymapFormatXKBV1 uint32 = 1
)

// wl_output mode flags.
const (
	OutputModeCurrent   uint32 = 1
	OutputModePreferred uint32 = 2
)

// xdg_wm_base and xdg_surface error codes.
const (
	WmBaseErrorRole                uint32 = 0
	WmBaseErrorDefunctSurfaces     uint32 = 1
	WmBaseErrorInvalidSurfaceState uint32 = 4

	XdgSurfaceErrorNotConstructed     uint32 = 1
	XdgSurfaceErrorAlreadyConstructed uint32 = 2
	XdgSurfaceErrorUnconfiguredBuffer uint32 = 3
	XdgSurfaceErrorInvalidSerial      uint32 = 4
	XdgSurfaceErrorInvalidSize        uint32 = 5
)

// xdg_toplevel states carried in the configure array.
const (
	ToplevelStateMaximized  uint32 = 1
	ToplevelStateFullscreen uint32 = 2
	ToplevelStateResizing   uint32 = 3
	ToplevelStateActivated  uint32 = 4
)
