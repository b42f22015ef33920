package peer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type handlers struct {
	Got func(string)
}

func TestSlotReplaysPendingInOrder(t *testing.T) {
	var slot Slot[handlers]
	slot.Emit(func(h handlers) { h.Got("a") })
	slot.Emit(func(h handlers) { h.Got("b") })

	var got []string
	slot.Subscribe(handlers{Got: func(s string) { got = append(got, s) }})
	slot.Emit(func(h handlers) { h.Got("c") })

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSlotSubscribeReplaces(t *testing.T) {
	var slot Slot[handlers]
	var first, second int
	sub1 := slot.Subscribe(handlers{Got: func(string) { first++ }})
	slot.Subscribe(handlers{Got: func(string) { second++ }})

	slot.Emit(func(h handlers) { h.Got("x") })
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	// A stale subscription must not detach its successor.
	sub1.Close()
	slot.Emit(func(h handlers) { h.Got("y") })
	assert.Equal(t, 2, second)
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	var slot Slot[handlers]
	calls := 0
	sub := slot.Subscribe(handlers{Got: func(string) { calls++ }})
	sub.Close()
	sub.Close()

	slot.Emit(func(h handlers) { h.Got("queued") })
	assert.Equal(t, 0, calls)

	slot.Subscribe(handlers{Got: func(string) { calls++ }})
	assert.Equal(t, 1, calls)
}

func TestSlotPendingIsBounded(t *testing.T) {
	var slot Slot[handlers]
	for i := 0; i < maxPending+10; i++ {
		i := i
		slot.Emit(func(h handlers) { h.Got(fmt.Sprint(i)) })
	}
	n := 0
	slot.Subscribe(handlers{Got: func(string) { n++ }})
	assert.Equal(t, maxPending, n)
}

func TestSlotReset(t *testing.T) {
	var slot Slot[handlers]
	slot.Emit(func(h handlers) { h.Got("dropped") })
	slot.Reset()
	n := 0
	slot.Subscribe(handlers{Got: func(string) { n++ }})
	assert.Zero(t, n)
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("open: %w", NewError(KindUnavailableID, errors.New("ID is taken")))
	assert.Equal(t, KindUnavailableID, KindOf(err))
	assert.True(t, IsKind(err, KindUnavailableID))
	assert.Equal(t, KindNetwork, KindOf(errors.New("boom")))
	assert.Equal(t, "unavailable-id: ID is taken", NewError(KindUnavailableID, errors.New("ID is taken")).Error())
}
