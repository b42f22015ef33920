package session

import (
	"context"
	"testing"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/peer/peertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReusesLiveEndpoint(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, time.Hour)

	ep, reused, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	assert.False(t, reused)

	again, reused, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Same(t, ep, again)
	assert.Equal(t, 1, b.Opened())
}

func TestRegistryDestroysAfterGrace(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, 30*time.Millisecond)

	ep, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	reg.ScheduleDestroy("room1", ep)
	assert.False(t, ep.Destroyed())

	eventually(t, "destroyed", ep.Destroyed)
	assert.Zero(t, reg.Len())
}

func TestRegistryAcquireCancelsPendingDestroy(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, 50*time.Millisecond)

	ep, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	reg.ScheduleDestroy("room1", ep)

	again, reused, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Same(t, ep, again)

	time.Sleep(120 * time.Millisecond)
	assert.False(t, ep.Destroyed())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryCancelDestroy(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, 50*time.Millisecond)

	assert.False(t, reg.CancelDestroy("room1"))
	ep, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	reg.ScheduleDestroy("room1", ep)
	assert.True(t, reg.CancelDestroy("room1"))

	time.Sleep(120 * time.Millisecond)
	assert.False(t, ep.Destroyed())
}

func TestRegistryReplacesDestroyedEntry(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, time.Hour)

	ep, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	ep.Destroy()

	fresh, reused, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotSame(t, ep, fresh)
}

func TestRegistryEvict(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, time.Hour)

	ep, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	reg.Evict("room1", ep)

	assert.True(t, ep.Destroyed())
	_, ok := reg.Get("room1")
	assert.False(t, ok)
}

func TestRegistryOrphanDestroy(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, 30*time.Millisecond)

	ep, err := reg.OpenAnonymous(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reg.Len())

	reg.ScheduleDestroy("room1", ep)
	eventually(t, "orphan destroyed", ep.Destroyed)
}

func TestRegistryClose(t *testing.T) {
	b := peertest.NewBroker()
	reg := NewRegistry(b.Opener(), time.Hour, nil)

	cached, _, err := reg.Acquire(context.Background(), "room1")
	require.NoError(t, err)
	orphan, err := reg.OpenAnonymous(context.Background())
	require.NoError(t, err)
	reg.ScheduleDestroy("", orphan)

	reg.Close()
	assert.True(t, cached.Destroyed())
	assert.True(t, orphan.Destroyed())

	_, _, err = reg.Acquire(context.Background(), "room2")
	assert.ErrorIs(t, err, ErrUnmounted)
}

func TestRegistryRejectsEmptyRoom(t *testing.T) {
	reg := newProcess(t, peertest.NewBroker(), time.Hour)
	_, _, err := reg.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyRoom)
}
