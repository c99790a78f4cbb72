package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tt(sec int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(sec) * time.Second)
}

func TestTracker_AddGet(t *testing.T) {
	tr := New()
	tr.Add("chan-1", "msg-1", tt(0))

	track, ok := tr.Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, "msg-1", track.MessageID)
	assert.Equal(t, tt(0), track.LastUpdatedAt)
}

func TestTracker_GetMissingIsNotOK(t *testing.T) {
	tr := New()
	_, ok := tr.Get("never-seen")
	assert.False(t, ok)
}

func TestTracker_Update(t *testing.T) {
	tr := New()
	tr.Add("chan-1", "msg-1", tt(0))
	tr.Update("chan-1", tt(30))

	track, ok := tr.Get("chan-1")
	require.True(t, ok)
	assert.Equal(t, tt(30), track.LastUpdatedAt)
}

func TestTracker_UpdateMissingIsNoop(t *testing.T) {
	tr := New()
	tr.Update("never-seen", tt(0))
	_, ok := tr.Get("never-seen")
	assert.False(t, ok)
}

func TestTracker_Remove(t *testing.T) {
	tr := New()
	tr.Add("chan-1", "msg-1", tt(0))
	tr.Remove("chan-1")
	_, ok := tr.Get("chan-1")
	assert.False(t, ok)
}
