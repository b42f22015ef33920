package session

import (
	"fmt"

	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// DefaultCursorColor is used when a cursor message carries no colour.
const DefaultCursorColor = "#ef4444"

// CursorPalette lists the colours a guest can pick from.
var CursorPalette = []string{"#ef4444", "#3b82f6", "#22c55e", "#eab308", "#a855f7"}

// Cursor is the remote pointer overlay, in coordinates relative to the
// shared surface.
type Cursor struct {
	X       float64
	Y       float64
	Visible bool
	Color   string
}

// applyCursor folds a cursor message into the overlay. Messages without
// coordinates keep the last known position.
func applyCursor(prev Cursor, msg protocol.Message) Cursor {
	next := Cursor{X: prev.X, Y: prev.Y, Visible: msg.Visible, Color: msg.Color}
	if x, y, ok := msg.Coordinates(); ok {
		next.X, next.Y = clamp01(x), clamp01(y)
	}
	if next.Color == "" {
		next.Color = DefaultCursorColor
	}
	return next
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// PointerMode selects when the guest shares its pointer.
type PointerMode int

const (
	// PointerAlways shares every movement over the surface.
	PointerAlways PointerMode = iota
	// PointerClick shares the pointer only while a button is held.
	PointerClick
)

func (m PointerMode) String() string {
	if m == PointerClick {
		return "click"
	}
	return "always"
}

func ParsePointerMode(s string) (PointerMode, error) {
	switch s {
	case "", "always":
		return PointerAlways, nil
	case "click":
		return PointerClick, nil
	}
	return PointerAlways, fmt.Errorf("unknown cursor mode %q", s)
}

// PointerKind is what the guest's pointer did.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerDown
	PointerUp
	PointerLeave
)

// PointerEvent is a pointer event already normalized to the surface.
type PointerEvent struct {
	Kind PointerKind
	X    float64
	Y    float64
}

// Rect is the on-screen bounding box of the shared surface.
type Rect struct {
	X, Y, W, H float64
}

// Normalize maps an absolute position into surface coordinates.
func (r Rect) Normalize(px, py float64) (x, y float64, inside bool) {
	if r.W <= 0 || r.H <= 0 {
		return 0, 0, false
	}
	x = (px - r.X) / r.W
	y = (py - r.Y) / r.H
	return x, y, x >= 0 && x < 1 && y >= 0 && y < 1
}

// CursorTracker turns pointer events into cursor messages according to the
// pointer mode.
type CursorTracker struct {
	Mode    PointerMode
	Color   string
	pressed bool
}

// Apply returns the message to send for ev, if any.
func (t *CursorTracker) Apply(ev PointerEvent) (protocol.Message, bool) {
	color := t.Color
	if color == "" {
		color = DefaultCursorColor
	}

	switch ev.Kind {
	case PointerLeave:
		return protocol.CursorHidden(color), true
	case PointerDown:
		t.pressed = true
		if t.Mode == PointerClick {
			return protocol.Cursor(ev.X, ev.Y, color), true
		}
	case PointerUp:
		t.pressed = false
		if t.Mode == PointerClick {
			msg := protocol.Cursor(ev.X, ev.Y, color)
			msg.Visible = false
			return msg, true
		}
	case PointerMove:
		if t.Mode == PointerAlways || t.pressed {
			return protocol.Cursor(ev.X, ev.Y, color), true
		}
	}
	return protocol.Message{}, false
}
