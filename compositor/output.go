// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/output.go
// Summary: wl_output advertisement from an explicit display description.

package compositor

import (
	"github.com/framegrace/texelway/protocol"
	"github.com/framegrace/texelway/registry"
	"github.com/framegrace/texelway/server"
)

// OutputInfo describes the single display. It comes from configuration or
// the presenting backend rather than being fixed.
type OutputInfo struct {
	Width, Height    int
	RefreshMHz       int
	PhysicalWidthMM  int
	PhysicalHeightMM int
	Make, Model      string
	Scale            int
}

func (o OutputInfo) withDefaults() OutputInfo {
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = 1280, 720
	}
	if o.RefreshMHz <= 0 {
		o.RefreshMHz = 60000
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Make == "" {
		o.Make = "texelway"
	}
	if o.Model == "" {
		o.Model = "virtual"
	}
	return o
}

// Bounds is the output rectangle in screen space.
func (o OutputInfo) Bounds() Rect { return Rect{0, 0, o.Width, o.Height} }

func bindOutput(c *Compositor) server.BindFunc {
	return func(s *server.Server, res registry.Resource) error {
		o := c.output
		events := []struct {
			opcode uint16
			args   []protocol.Arg
		}{
			{0, []protocol.Arg{
				protocol.IntArg(0), protocol.IntArg(0),
				protocol.IntArg(int32(o.PhysicalWidthMM)), protocol.IntArg(int32(o.PhysicalHeightMM)),
				protocol.IntArg(0), protocol.StringArg(o.Make), protocol.StringArg(o.Model), protocol.IntArg(0),
			}},
			{1, []protocol.Arg{
				protocol.UintArg(protocol.OutputModeCurrent | protocol.OutputModePreferred),
				protocol.IntArg(int32(o.Width)), protocol.IntArg(int32(o.Height)), protocol.IntArg(int32(o.RefreshMHz)),
			}},
			{3, []protocol.Arg{protocol.IntArg(int32(o.Scale))}},
			{2, nil},
		}
		for _, ev := range events {
			if err := s.SendEvent(res, ev.opcode, ev.args...); err != nil {
				return err
			}
		}
		return nil
	}
}
