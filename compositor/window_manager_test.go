// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: compositor/window_manager_test.go
// Summary: Stacking, placement, hit-testing and region semantics.

package compositor

import "testing"

func mappedNode(wm *WindowManager, x, y, w, h int) *Surface {
	s := &Surface{}
	n := wm.AddSurface(s)
	n.Position = Point{x, y}
	wm.Map(s, Size{w, h})
	return s
}

func TestWindowUnderPointReturnsTopMost(t *testing.T) {
	wm := NewWindowManager(7)
	bottom := mappedNode(wm, 0, 0, 100, 100)
	top := mappedNode(wm, 50, 50, 100, 100)

	if n := wm.WindowUnderPoint(Point{60, 60}); n == nil || n.Surface != top {
		t.Fatalf("expected top window at overlap")
	}
	if n := wm.WindowUnderPoint(Point{10, 10}); n == nil || n.Surface != bottom {
		t.Fatalf("expected bottom window outside overlap")
	}
	wm.Raise(bottom)
	if n := wm.WindowUnderPoint(Point{60, 60}); n == nil || n.Surface != bottom {
		t.Fatalf("raise did not change hit-test order")
	}
	if n := wm.WindowUnderPoint(Point{100, 100}); n == nil || n.Surface != top {
		t.Fatalf("right/bottom edges are exclusive")
	}
	if wm.WindowUnderPoint(Point{500, 500}) != nil {
		t.Fatalf("hit outside every window")
	}
}

func TestWindowUnderPointSkipsUnmapped(t *testing.T) {
	wm := NewWindowManager(7)
	bottom := mappedNode(wm, 0, 0, 100, 100)
	top := mappedNode(wm, 0, 0, 100, 100)
	wm.Unmap(top)

	if n := wm.WindowUnderPoint(Point{1, 1}); n == nil || n.Surface != bottom {
		t.Fatalf("unmapped window was hit")
	}
	wm.RemoveSurface(bottom)
	if wm.WindowUnderPoint(Point{1, 1}) != nil {
		t.Fatalf("removed window was hit")
	}
}

func TestPlacementIsDeterministicAndBounded(t *testing.T) {
	a, b := NewWindowManager(99), NewWindowManager(99)
	for i := 0; i < 50; i++ {
		na, nb := a.AddSurface(&Surface{}), b.AddSurface(&Surface{})
		if na.Position != nb.Position {
			t.Fatalf("same seed placed differently: %+v vs %+v", na.Position, nb.Position)
		}
		p := na.Position
		if p.X < 50 || p.X >= 250 || p.Y < 50 || p.Y >= 250 {
			t.Fatalf("placement out of range: %+v", p)
		}
	}
}

func TestFocusSurfaceIsExclusive(t *testing.T) {
	wm := NewWindowManager(1)
	a := mappedNode(wm, 0, 0, 10, 10)
	b := mappedNode(wm, 0, 0, 10, 10)

	wm.FocusSurface(a)
	wm.FocusSurface(b)
	focused := 0
	for _, n := range wm.NodesAscending() {
		if n.Focused {
			focused++
		}
	}
	if focused != 1 || !wm.Find(b).Focused {
		t.Fatalf("expected only b focused")
	}
	wm.FocusSurface(nil)
	if wm.Find(b).Focused {
		t.Fatalf("focus not cleared")
	}
}

func TestNodesDescendingReversesStack(t *testing.T) {
	wm := NewWindowManager(1)
	a := mappedNode(wm, 0, 0, 1, 1)
	b := mappedNode(wm, 0, 0, 1, 1)
	c := mappedNode(wm, 0, 0, 1, 1)
	wm.Raise(a)

	want := []*Surface{a, c, b}
	for i, n := range wm.NodesDescending() {
		if n.Surface != want[i] {
			t.Fatalf("position %d: unexpected surface", i)
		}
	}
}

func TestRegionLastOperationWins(t *testing.T) {
	var r Region
	r.Add(Rect{0, 0, 10, 10})
	r.Subtract(Rect{2, 2, 4, 4})
	r.Add(Rect{3, 3, 1, 1})

	cases := []struct {
		p    Point
		want bool
	}{
		{Point{0, 0}, true},
		{Point{2, 2}, false},
		{Point{3, 3}, true},
		{Point{9, 9}, true},
		{Point{10, 10}, false},
	}
	for _, tc := range cases {
		if got := r.Contains(tc.p); got != tc.want {
			t.Fatalf("Contains(%+v) = %v, want %v", tc.p, got, tc.want)
		}
	}
	var infinite *Region
	if !infinite.Contains(Point{-1000, 1000}) {
		t.Fatalf("nil region must be infinite")
	}
}
