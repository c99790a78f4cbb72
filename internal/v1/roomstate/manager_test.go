package roomstate

import (
	"sync"
	"testing"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConnectCreatesRoom(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	err := m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{})
	require.NoError(t, err)

	room, ok := m.Room("chan-1")
	require.True(t, ok)
	defer room.Release()
	snap := room.Snapshot()
	assert.Len(t, snap.Participants, 1)
}

func TestManager_DisconnectUnknownChannelIsNoop(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	status, err := m.HandleDisconnectEvent(rt(0), "never-seen", "1")
	assert.NoError(t, err)
	assert.Equal(t, Idle, status)
}

func TestManager_UpdateUnknownChannelIsNoop(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	err := m.HandleUpdateEvent(rt(0), "never-seen", "1", activity.Flags{Muted: true})
	assert.NoError(t, err)
}

func TestManager_SameChannelRoutesToSameRoom(t *testing.T) {
	m := NewManager(16, 60*time.Second)
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{}))
	require.NoError(t, m.HandleUpdateEvent(rt(5), "chan-1", "1", activity.Flags{Muted: true}))

	room, ok := m.Room("chan-1")
	require.True(t, ok)
	defer room.Release()
	snap := room.Snapshot()
	require.Len(t, snap.Participants, 1)
	assert.Len(t, snap.Participants[0].History, 2)
}

func TestManager_SnapshotAll(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{}))
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-2", "guild-1", "2", "Bob", "", activity.Flags{}))

	all := m.SnapshotAll()
	assert.Len(t, all, 2)
}

func TestManager_CleanupRemovesExpiredRooms(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{}))
	_, err := m.HandleDisconnectEvent(rt(5), "chan-1", "1")
	require.NoError(t, err)

	removed := m.Cleanup(rt(5))
	assert.Equal(t, 0, removed, "not yet expired")

	removed = m.Cleanup(rt(70))
	assert.Equal(t, 1, removed)

	_, ok := m.Room("chan-1")
	assert.False(t, ok)
}

func TestManager_CleanupSkipsRoomHeldViaMutex(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{}))
	_, err := m.HandleDisconnectEvent(rt(5), "chan-1", "1")
	require.NoError(t, err)

	room, ok := m.Room("chan-1")
	require.True(t, ok)
	room.Release() // this test exercises the TryLock guard, not the refcount guard

	room.mu.Lock()
	removed := m.Cleanup(rt(100))
	room.mu.Unlock()

	assert.Equal(t, 0, removed, "room held elsewhere must be retained this cycle")
}

func TestManager_CleanupSkipsRoomHeldViaReference(t *testing.T) {
	m := NewManager(4, 60*time.Second)
	require.NoError(t, m.HandleConnectEvent(rt(0), "chan-1", "guild-1", "1", "Alice", "", activity.Flags{}))
	_, err := m.HandleDisconnectEvent(rt(5), "chan-1", "1")
	require.NoError(t, err)

	room, ok := m.Room("chan-1") // Acquires a reference, does not lock room.mu
	require.True(t, ok)

	removed := m.Cleanup(rt(100))
	assert.Equal(t, 0, removed, "room with an outstanding reference must be retained this cycle")

	room.Release()
	removed = m.Cleanup(rt(100))
	assert.Equal(t, 1, removed, "room is reapable once its reference is released")
}

func TestManager_ConcurrentEventsDoNotRace(t *testing.T) {
	m := NewManager(8, 60*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.HandleConnectEvent(rt(0), "chan-shared", "guild-1", string(rune('a'+i%26)), "u", "", activity.Flags{})
		}(i)
	}
	wg.Wait()

	room, ok := m.Room("chan-shared")
	require.True(t, ok)
	defer room.Release()
	assert.NotEmpty(t, room.Snapshot().Participants)
}
