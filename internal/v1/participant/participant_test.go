package participant

import (
	"testing"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func t0(sec int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(sec) * time.Second)
}

// S1 — simple session.
func TestSimpleSession(t *testing.T) {
	p := New("1", "Alice", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))
	require.NoError(t, p.Disconnect(t0(30)))

	require.Len(t, p.History, 1)
	assert.Equal(t, t0(0), p.History[0].Start)
	assert.Equal(t, t0(30), p.History[0].End)
	assert.False(t, p.IsConnected())
}

// S2 — mute toggle mid-call.
func TestMuteToggleMidCall(t *testing.T) {
	p := New("2", "Bob", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))
	require.NoError(t, p.Update(t0(10), activity.Flags{Muted: true}))
	require.NoError(t, p.Update(t0(25), activity.Flags{Muted: false}))
	require.NoError(t, p.Disconnect(t0(40)))

	require.Len(t, p.History, 3)
	assert.Equal(t, t0(0), p.History[0].Start)
	assert.Equal(t, t0(10), p.History[0].End)
	assert.True(t, p.History[1].IsFollowing(p.History[0]))
	assert.True(t, p.History[2].IsFollowing(p.History[1]))
	assert.Equal(t, 40*time.Second, p.CumulativeDuration(t0(100)))
}

// S3 — disconnect then reconnect.
func TestDisconnectThenReconnect(t *testing.T) {
	p := New("3", "Carol", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))
	require.NoError(t, p.Disconnect(t0(5)))
	require.NoError(t, p.Connect(t0(12), activity.Flags{}))

	require.Len(t, p.History, 2)
	assert.False(t, p.History[1].IsFollowing(p.History[0]))
	assert.Equal(t, 13*time.Second, p.CumulativeDuration(t0(20)))
}

// S4 — streaming run across a flag change.
func TestStreamingRunAcrossFlagChange(t *testing.T) {
	p := New("4", "Dan", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{SharingScreen: true}))
	require.NoError(t, p.Update(t0(20), activity.Flags{Muted: true, SharingScreen: true}))
	require.NoError(t, p.Update(t0(30), activity.Flags{Muted: true, SharingScreen: false}))

	require.Len(t, p.History, 3)
	assert.True(t, p.History[0].Flags.SharingScreen)
	assert.True(t, p.History[1].Flags.SharingScreen)
	assert.False(t, p.History[2].Flags.SharingScreen)
}

func TestUpdateIdempotent(t *testing.T) {
	p := New("5", "Erin", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{Muted: true}))
	require.NoError(t, p.Update(t0(5), activity.Flags{Muted: true}))
	require.NoError(t, p.Update(t0(6), activity.Flags{Muted: true}))

	assert.Len(t, p.History, 1)
}

func TestConnectWhileOpenFails(t *testing.T) {
	p := New("6", "Fred", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))
	assert.ErrorIs(t, p.Connect(t0(1), activity.Flags{}), ErrAlreadyStarted)
}

func TestDisconnectWithoutSessionFails(t *testing.T) {
	p := New("7", "Gia", "", "g")
	assert.ErrorIs(t, p.Disconnect(t0(0)), ErrNoActiveActivity)
}

func TestUpdateWhileDisconnectedFails(t *testing.T) {
	p := New("8", "Hal", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))
	require.NoError(t, p.Disconnect(t0(5)))
	assert.ErrorIs(t, p.Update(t0(6), activity.Flags{Muted: true}), ErrNoActiveActivity)
}

func TestCloneIsIndependent(t *testing.T) {
	p := New("9", "Ivy", "", "g")
	require.NoError(t, p.Connect(t0(0), activity.Flags{}))

	clone := p.Clone()
	require.NoError(t, p.Update(t0(5), activity.Flags{Muted: true}))

	assert.Len(t, clone.History, 1)
	assert.False(t, clone.History[0].Flags.Muted)
}
