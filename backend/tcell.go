// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: backend/tcell.go
// Summary: Terminal backend: tcell keyboard and mouse as evdev input, window outlines as output.
// Usage: Selected by cmd/texelway when stdout is a terminal and input.backend is "terminal".
// Notes: One terminal cell stands for CellWidth x CellHeight pixels.

package backend

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Pixel size of one terminal cell.
const (
	CellWidth  = 8
	CellHeight = 16
)

// Terminal adapts a tcell.Screen into an InputBackend and a Presenter.
type Terminal struct {
	screen  tcell.Screen
	events  chan InputEvent
	quit    chan struct{}
	once    sync.Once
	start   time.Time
	mouse   mouseTracker
	pointer tcell.Style
}

// NewTerminal initialises screen and starts reading events from it.
func NewTerminal(screen tcell.Screen) (*Terminal, error) {
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.HideCursor()
	t := &Terminal{
		screen:  screen,
		events:  make(chan InputEvent, 256),
		quit:    make(chan struct{}),
		start:   time.Now(),
		pointer: tcell.StyleDefault.Reverse(true),
	}
	go t.pump()
	return t, nil
}

// PixelSize reports the terminal size in pixels.
func (t *Terminal) PixelSize() (int, int) {
	w, h := t.screen.Size()
	return w * CellWidth, h * CellHeight
}

func (t *Terminal) Events() <-chan InputEvent { return t.events }

func (t *Terminal) Close() error {
	t.once.Do(func() {
		close(t.quit)
		t.screen.Fini()
	})
	return nil
}

func (t *Terminal) pump() {
	defer close(t.events)
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			return
		}
		now := uint32(time.Since(t.start).Milliseconds())
		var out []InputEvent
		switch ev := ev.(type) {
		case *tcell.EventKey:
			out = translateKey(ev, now)
		case *tcell.EventMouse:
			out = t.mouse.translate(ev, now)
		case *tcell.EventResize:
			t.screen.Sync()
		}
		for _, ie := range out {
			select {
			case t.events <- ie:
			case <-t.quit:
				return
			}
		}
	}
}

var letterCodes = map[rune]uint32{
	'q': 16, 'w': 17, 'e': 18, 'r': 19, 't': 20, 'y': 21, 'u': 22, 'i': 23, 'o': 24, 'p': 25,
	'a': 30, 's': 31, 'd': 32, 'f': 33, 'g': 34, 'h': 35, 'j': 36, 'k': 37, 'l': 38,
	'z': 44, 'x': 45, 'c': 46, 'v': 47, 'b': 48, 'n': 49, 'm': 50,
	'1': 2, '2': 3, '3': 4, '4': 5, '5': 6, '6': 7, '7': 8, '8': 9, '9': 10, '0': 11,
	'-': 12, '=': 13, '[': 26, ']': 27, ';': 39, '\'': 40, '`': 41, '\\': 43,
	',': 51, '.': 52, '/': 53, ' ': 57,
}

// US layout shifted symbols and the key that produces them.
var shiftedCodes = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5', '^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'_': '-', '+': '=', '{': '[', '}': ']', ':': ';', '"': '\'', '~': '`', '|': '\\',
	'<': ',', '>': '.', '?': '/',
}

var specialCodes = map[tcell.Key]uint32{
	tcell.KeyEnter:     28,
	tcell.KeyTab:       15,
	tcell.KeyBackspace: 14,
	tcell.KeyEscape:    1,
	tcell.KeyUp:        103,
	tcell.KeyDown:      108,
	tcell.KeyLeft:      105,
	tcell.KeyRight:     106,
	tcell.KeyHome:      102,
	tcell.KeyEnd:       107,
	tcell.KeyPgUp:      104,
	tcell.KeyPgDn:      109,
	tcell.KeyInsert:    110,
	tcell.KeyDelete:    111,
	tcell.KeyF1:        59,
	tcell.KeyF2:        60,
	tcell.KeyF3:        61,
	tcell.KeyF4:        62,
	tcell.KeyF5:        63,
	tcell.KeyF6:        64,
	tcell.KeyF7:        65,
	tcell.KeyF8:        66,
	tcell.KeyF9:        67,
	tcell.KeyF10:       68,
}

// translateKey turns one terminal keystroke into press/release pairs, with
// modifier keys wrapped around it. Terminals report no releases, so every
// keystroke is synthesised as a tap. Ctrl+Q requests shutdown.
func translateKey(ev *tcell.EventKey, now uint32) []InputEvent {
	var mods []uint32
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		mods = append(mods, KeyLeftCtrl)
	}
	if ev.Modifiers()&tcell.ModAlt != 0 {
		mods = append(mods, KeyLeftAlt)
	}

	key := ev.Key()
	if key == tcell.KeyCtrlQ {
		return []InputEvent{StopRequested{}}
	}
	if code, ok := specialCodes[key]; ok {
		return tap(code, mods, now)
	}
	if key >= tcell.KeyCtrlA && key <= tcell.KeyCtrlZ {
		letter := 'a' + rune(key-tcell.KeyCtrlA)
		if len(mods) == 0 || mods[0] != KeyLeftCtrl {
			mods = append([]uint32{KeyLeftCtrl}, mods...)
		}
		return tap(letterCodes[letter], mods, now)
	}
	if key != tcell.KeyRune {
		debugLog.Printf("backend: unmapped terminal key %s", ev.Name())
		return nil
	}

	r := ev.Rune()
	if r >= 'A' && r <= 'Z' {
		r += 'a' - 'A'
		mods = append(mods, KeyLeftShift)
	} else if base, ok := shiftedCodes[r]; ok {
		r = base
		mods = append(mods, KeyLeftShift)
	}
	code, ok := letterCodes[r]
	if !ok {
		debugLog.Printf("backend: unmapped terminal rune %q", ev.Rune())
		return nil
	}
	return tap(code, mods, now)
}

func tap(code uint32, mods []uint32, now uint32) []InputEvent {
	out := make([]InputEvent, 0, 2*len(mods)+2)
	for _, m := range mods {
		out = append(out, KeyPress{Time: now, Keycode: m, Pressed: true})
	}
	out = append(out,
		KeyPress{Time: now, Keycode: code, Pressed: true},
		KeyPress{Time: now, Keycode: code, Pressed: false},
	)
	for i := len(mods) - 1; i >= 0; i-- {
		out = append(out, KeyPress{Time: now, Keycode: mods[i], Pressed: false})
	}
	return out
}

// mouseTracker converts absolute cell positions and button masks into
// relative motion and button transitions.
type mouseTracker struct {
	seen    bool
	x, y    int
	buttons tcell.ButtonMask
}

var buttonCodes = []struct {
	mask tcell.ButtonMask
	code uint32
}{
	{tcell.ButtonPrimary, BtnLeft},
	{tcell.ButtonSecondary, BtnRight},
	{tcell.ButtonMiddle, BtnMiddle},
}

func (m *mouseTracker) translate(ev *tcell.EventMouse, now uint32) []InputEvent {
	var out []InputEvent
	cx, cy := ev.Position()
	px, py := cx*CellWidth, cy*CellHeight
	if !m.seen || px != m.x || py != m.y {
		dx, dy := float64(px-m.x), float64(py-m.y)
		out = append(out, PointerMotion{Time: now, DX: dx, DY: dy, DXUnaccel: dx, DYUnaccel: dy})
		m.x, m.y, m.seen = px, py, true
	}
	buttons := ev.Buttons()
	for _, b := range buttonCodes {
		was, is := m.buttons&b.mask != 0, buttons&b.mask != 0
		if was != is {
			out = append(out, PointerButton{Time: now, Button: b.code, Pressed: is})
		}
	}
	m.buttons = buttons
	return out
}

// Present draws every window as an outlined box with its title.
func (t *Terminal) Present(scene Scene) error {
	drawScene(t.screen, scene, t.pointer)
	t.screen.Show()
	return nil
}

func drawScene(screen tcell.Screen, scene Scene, pointer tcell.Style) {
	screen.Clear()
	cols, rows := screen.Size()
	for _, w := range scene.Windows {
		style := tcell.StyleDefault
		if w.Focused {
			style = style.Bold(true)
		}
		x0, y0 := w.X/CellWidth, w.Y/CellHeight
		x1 := (w.X + w.Width + CellWidth - 1) / CellWidth
		y1 := (w.Y + w.Height + CellHeight - 1) / CellHeight
		if x1 <= x0+1 {
			x1 = x0 + 2
		}
		if y1 <= y0+1 {
			y1 = y0 + 2
		}
		for x := x0; x <= x1; x++ {
			for y := y0; y <= y1; y++ {
				if x < 0 || y < 0 || x >= cols || y >= rows {
					continue
				}
				screen.SetContent(x, y, boxRune(x, y, x0, y0, x1, y1), nil, style)
			}
		}
		title := runewidth.Truncate(w.Title, x1-x0-1, "…")
		col := x0 + 1
		for _, r := range title {
			if col >= 0 && col < cols && y0 >= 0 && y0 < rows {
				screen.SetContent(col, y0, r, nil, style)
			}
			col += runewidth.RuneWidth(r)
		}
	}
	px, py := int(scene.PointerX)/CellWidth, int(scene.PointerY)/CellHeight
	if px >= 0 && py >= 0 && px < cols && py < rows {
		mainc, combc, _, _ := screen.GetContent(px, py)
		screen.SetContent(px, py, mainc, combc, pointer)
	}
}

func boxRune(x, y, x0, y0, x1, y1 int) rune {
	switch {
	case x == x0 && y == y0:
		return tcell.RuneULCorner
	case x == x1 && y == y0:
		return tcell.RuneURCorner
	case x == x0 && y == y1:
		return tcell.RuneLLCorner
	case x == x1 && y == y1:
		return tcell.RuneLRCorner
	case y == y0 || y == y1:
		return tcell.RuneHLine
	case x == x0 || x == x1:
		return tcell.RuneVLine
	}
	return ' '
}
