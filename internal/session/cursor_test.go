package session

import (
	"testing"

	"github.com/myooken/p2pShareDisplay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyCursor(t *testing.T) {
	prev := Cursor{X: 0.25, Y: 0.75, Visible: true, Color: "#3b82f6"}

	got := applyCursor(prev, protocol.Cursor(0.5, 0.6, "#22c55e"))
	assert.Equal(t, Cursor{X: 0.5, Y: 0.6, Visible: true, Color: "#22c55e"}, got)

	got = applyCursor(prev, protocol.CursorHidden(""))
	assert.Equal(t, Cursor{X: 0.25, Y: 0.75, Visible: false, Color: DefaultCursorColor}, got)

	got = applyCursor(prev, protocol.Cursor(-1, 3, "#22c55e"))
	assert.Equal(t, 0.0, got.X)
	assert.Equal(t, 1.0, got.Y)
}

func TestRectNormalize(t *testing.T) {
	r := Rect{X: 10, Y: 5, W: 100, H: 50}

	x, y, inside := r.Normalize(60, 30)
	assert.True(t, inside)
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, 0.5, y, 1e-9)

	_, _, inside = r.Normalize(5, 30)
	assert.False(t, inside)

	_, _, inside = Rect{}.Normalize(1, 1)
	assert.False(t, inside)
}

func TestParsePointerMode(t *testing.T) {
	m, err := ParsePointerMode("click")
	require.NoError(t, err)
	assert.Equal(t, PointerClick, m)
	assert.Equal(t, "click", m.String())

	m, err = ParsePointerMode("")
	require.NoError(t, err)
	assert.Equal(t, PointerAlways, m)

	_, err = ParsePointerMode("hover")
	assert.Error(t, err)
}

func TestCursorTrackerAlways(t *testing.T) {
	tr := CursorTracker{}

	msg, ok := tr.Apply(PointerEvent{Kind: PointerMove, X: 0.1, Y: 0.2})
	require.True(t, ok)
	assert.Equal(t, protocol.TypeCursor, msg.Type)
	assert.True(t, msg.Visible)
	assert.Equal(t, DefaultCursorColor, msg.Color)
	x, y, ok := msg.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 0.1, x)
	assert.Equal(t, 0.2, y)

	msg, ok = tr.Apply(PointerEvent{Kind: PointerLeave})
	require.True(t, ok)
	assert.False(t, msg.Visible)
	_, _, ok = msg.Coordinates()
	assert.False(t, ok)
}

func TestCursorTrackerClick(t *testing.T) {
	tr := CursorTracker{Mode: PointerClick, Color: "#a855f7"}

	_, ok := tr.Apply(PointerEvent{Kind: PointerMove, X: 0.1, Y: 0.1})
	assert.False(t, ok, "hover is private in click mode")

	msg, ok := tr.Apply(PointerEvent{Kind: PointerDown, X: 0.2, Y: 0.2})
	require.True(t, ok)
	assert.True(t, msg.Visible)
	assert.Equal(t, "#a855f7", msg.Color)

	msg, ok = tr.Apply(PointerEvent{Kind: PointerMove, X: 0.3, Y: 0.3})
	require.True(t, ok)
	assert.True(t, msg.Visible)

	msg, ok = tr.Apply(PointerEvent{Kind: PointerUp, X: 0.4, Y: 0.4})
	require.True(t, ok)
	assert.False(t, msg.Visible)

	_, ok = tr.Apply(PointerEvent{Kind: PointerMove, X: 0.5, Y: 0.5})
	assert.False(t, ok)
}
