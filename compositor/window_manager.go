// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/window_manager.go
// Summary: Window stack, placement and hit-testing.
// Usage: Surfaces join the stack when they gain a window role; the seat queries it for input routing.
// Notes: Slice order is stacking order, bottom first. Raise is remove plus append.

package compositor

import "time"

// Node is one window in the stack.
type Node struct {
	Surface  *Surface
	Position Point
	Size     *Size
	Draw     bool
	Focused  bool
}

// Geometry is the node's effective screen rectangle: the role's solid
// window geometry when set, otherwise the buffer size, at Position.
func (n *Node) Geometry() (Rect, bool) {
	if n.Size == nil {
		return Rect{}, false
	}
	size := *n.Size
	if role := n.Surface.role; role != nil {
		if g, ok := role.SolidGeometry(); ok && !g.Empty() {
			size = g.Size()
		}
	}
	return RectAt(n.Position, size), true
}

// SurfaceOrigin is where surface coordinate (0,0) lands on screen.
func (n *Node) SurfaceOrigin() Point {
	if role := n.Surface.role; role != nil {
		if g, ok := role.SolidGeometry(); ok && !g.Empty() {
			return n.Position.Sub(g.Origin())
		}
	}
	return n.Position
}

// WindowManager keeps nodes in stacking order.
type WindowManager struct {
	nodes []*Node
	rand  uint32
}

// NewWindowManager seeds placement with seed, or the clock when zero.
func NewWindowManager(seed uint32) *WindowManager {
	if seed == 0 {
		seed = uint32(time.Now().UnixNano()) | 1
	}
	return &WindowManager{rand: seed}
}

func (wm *WindowManager) next() uint32 {
	x := wm.rand
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	wm.rand = x
	return x
}

// AddSurface puts s on top at a pseudo-random position in [50,250).
func (wm *WindowManager) AddSurface(s *Surface) *Node {
	if n := wm.Find(s); n != nil {
		return n
	}
	n := &Node{
		Surface:  s,
		Position: Point{int(wm.next()%200) + 50, int(wm.next()%200) + 50},
	}
	wm.nodes = append(wm.nodes, n)
	debugLog.Printf("compositor: window %s placed at %d,%d", s.res, n.Position.X, n.Position.Y)
	return n
}

func (wm *WindowManager) index(s *Surface) int {
	for i, n := range wm.nodes {
		if n.Surface == s {
			return i
		}
	}
	return -1
}

// Find returns the node of s, or nil.
func (wm *WindowManager) Find(s *Surface) *Node {
	if i := wm.index(s); i >= 0 {
		return wm.nodes[i]
	}
	return nil
}

func (wm *WindowManager) RemoveSurface(s *Surface) {
	if i := wm.index(s); i >= 0 {
		wm.nodes = append(wm.nodes[:i], wm.nodes[i+1:]...)
	}
}

// Raise moves s to the top of the stack.
func (wm *WindowManager) Raise(s *Surface) {
	i := wm.index(s)
	if i < 0 || i == len(wm.nodes)-1 {
		return
	}
	n := wm.nodes[i]
	wm.nodes = append(wm.nodes[:i], wm.nodes[i+1:]...)
	wm.nodes = append(wm.nodes, n)
}

// FocusSurface marks s as the only focused node; nil clears focus.
func (wm *WindowManager) FocusSurface(s *Surface) {
	for _, n := range wm.nodes {
		n.Focused = s != nil && n.Surface == s
	}
}

func (wm *WindowManager) Map(s *Surface, size Size) {
	if n := wm.Find(s); n != nil {
		n.Size = &size
		n.Draw = true
	}
}

// Resize updates a node's buffer size; an unmapped node becomes mapped.
func (wm *WindowManager) Resize(s *Surface, size Size) { wm.Map(s, size) }

func (wm *WindowManager) Unmap(s *Surface) {
	if n := wm.Find(s); n != nil {
		n.Size = nil
		n.Draw = false
	}
}

// NodesAscending returns the stack bottom to top.
func (wm *WindowManager) NodesAscending() []*Node {
	return append([]*Node(nil), wm.nodes...)
}

// NodesDescending returns the stack top to bottom.
func (wm *WindowManager) NodesDescending() []*Node {
	out := make([]*Node, len(wm.nodes))
	for i, n := range wm.nodes {
		out[len(wm.nodes)-1-i] = n
	}
	return out
}

// WindowUnderPoint returns the top-most mapped node containing p.
func (wm *WindowManager) WindowUnderPoint(p Point) *Node {
	for i := len(wm.nodes) - 1; i >= 0; i-- {
		n := wm.nodes[i]
		if g, ok := n.Geometry(); ok && g.Contains(p) {
			return n
		}
	}
	return nil
}
