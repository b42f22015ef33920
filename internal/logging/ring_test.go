package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingKeepsNewestEntries(t *testing.T) {
	r := NewRing(3, slog.LevelInfo)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		r.Append(Entry{Message: msg})
	}

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Message)
	assert.Equal(t, "e", entries[2].Message)
}

func TestRingPartial(t *testing.T) {
	r := NewRing(5, slog.LevelInfo)
	r.Append(Entry{Message: "only"})

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "only", entries[0].Message)
}

func TestTeeCapturesBelowOutputLevel(t *testing.T) {
	var buf bytes.Buffer
	ring := NewRing(RecentCapacity, slog.LevelInfo)
	logger := slog.New(NewTee(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}), ring))

	logger.With("room", "abc123").WithGroup("auth").Info("guest accepted", "peer", "p1")
	logger.Debug("not kept")

	assert.Empty(t, buf.String())
	entries := ring.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "guest accepted", entries[0].Message)
	assert.Equal(t, "room=abc123 auth.peer=p1", entries[0].Attrs)
}

func TestRingNotify(t *testing.T) {
	r := NewRing(2, slog.LevelInfo)
	calls := 0
	r.OnAppend(func() { calls++ })
	r.Append(Entry{Message: "x"})
	assert.Equal(t, 1, calls)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("dev"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel(""))
}
