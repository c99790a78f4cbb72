// Package gateway adapts an upstream chat-platform gateway connection
// into the three RoomManager event calls, and implements the outbound
// publisher used to send and edit report messages.
package gateway

import (
	"context"
	"time"
)

// VoiceState is one user's presence in a voice channel at an instant.
// ChannelID is empty when the user is not in any voice channel.
type VoiceState struct {
	GuildID       string
	ChannelID     string
	UserID        string
	Name          string
	AvatarURL     string
	ServerMute    bool
	SelfMute      bool
	ServerDeaf    bool
	SelfDeaf      bool
	SelfStream    bool
}

// VoiceStateUpdate is the gateway's (old?, new) pair for one user's
// voice-channel transition.
type VoiceStateUpdate struct {
	Old *VoiceState
	New *VoiceState
}

// CacheReadyEntry is one user already present in a voice channel at
// process start, reported by the gateway's initial cache-ready event.
type CacheReadyEntry struct {
	GuildID   string
	ChannelID string
	UserID    string
	Name      string
	AvatarURL string
}

// EventSource is an upstream gateway connection delivering voice-state
// events. Connect blocks until ctx is canceled or the connection is
// lost.
type EventSource interface {
	Connect(ctx context.Context, onReady func([]CacheReadyEntry), onUpdate func(VoiceStateUpdate)) error
}

// Clock abstracts time.Now for testability; production callers pass
// time.Now.
type Clock func() time.Time
