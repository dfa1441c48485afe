// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/geometry.go
// Summary: Integer points, sizes and rectangles in screen or surface space.

package compositor

import "fmt"

type Point struct{ X, Y int }

func (p Point) Add(o Point) Point { return Point{p.X + o.X, p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }

type Size struct{ Width, Height int }

// Rect is half open: it contains X <= x < X+Width.
type Rect struct{ X, Y, Width, Height int }

func RectAt(p Point, s Size) Rect { return Rect{p.X, p.Y, s.Width, s.Height} }

func (r Rect) Origin() Point { return Point{r.X, r.Y} }
func (r Rect) Size() Size    { return Size{r.Width, r.Height} }
func (r Rect) Empty() bool   { return r.Width <= 0 || r.Height <= 0 }

func (r Rect) Contains(p Point) bool {
	return !r.Empty() && p.X >= r.X && p.Y >= r.Y && p.X < r.X+r.Width && p.Y < r.Y+r.Height
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}
