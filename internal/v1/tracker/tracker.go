// Package tracker maps a channel id to the message currently showing
// its report, so the report orchestrator can edit-in-place instead of
// spamming a new message on every refresh tick.
package tracker

import (
	"sync"
	"time"
)

// Track is one channel's current report message.
type Track struct {
	MessageID     string
	LastUpdatedAt time.Time
}

// Tracker is a constant-time, internally synchronized channel ->
// Track map. Modeled on the registry's map-guarded-by-a-mutex idiom,
// simplified since a Track carries no timer of its own.
type Tracker struct {
	mu     sync.Mutex
	tracks map[string]Track
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{tracks: make(map[string]Track)}
}

// Add records a new Track for channelID, created at now.
func (t *Tracker) Add(channelID, messageID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks[channelID] = Track{MessageID: messageID, LastUpdatedAt: now}
}

// Update refreshes the LastUpdatedAt of an existing Track. It is a
// no-op if channelID has no Track.
func (t *Tracker) Update(channelID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	track, ok := t.tracks[channelID]
	if !ok {
		return
	}
	track.LastUpdatedAt = now
	t.tracks[channelID] = track
}

// Get returns the Track for channelID, if any.
func (t *Tracker) Get(channelID string) (Track, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	track, ok := t.tracks[channelID]
	return track, ok
}

// Remove deletes the Track for channelID, if any.
func (t *Tracker) Remove(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tracks, channelID)
}
