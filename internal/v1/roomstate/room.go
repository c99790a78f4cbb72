// Package roomstate holds the per-channel room registry: the Room type
// aggregating Participants observed in one voice channel, and the sharded
// RoomManager that routes gateway events to the right Room.
package roomstate

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/callwatch/backend/internal/v1/participant"
)

// ErrParticipantNotFound is returned by HandleDisconnect/HandleUpdate when the
// user has no known Participant in the Room.
var ErrParticipantNotFound = errors.New("roomstate: participant not found")

// DefaultIdleTimeout is used when a Room is constructed without an explicit
// idle timeout.
const DefaultIdleTimeout = 60 * time.Second

// Status is the result of handling a disconnect against a Room.
type Status int

const (
	// Occupied means at least one participant still has an open Activity.
	Occupied Status = iota
	// Idle means no participant has an open Activity; the Room is now
	// eligible for expiry after IdleTimeout elapses.
	Idle
)

// Room is the set of Participants observed in one voice channel since it
// became active. All mutating operations are serialized by mu; callers that
// only need a consistent read should use Snapshot.
type Room struct {
	mu sync.Mutex

	// refs counts outstanding external references taken via Acquire, e.g. a
	// room pointer an EventAdapter is about to Snapshot and publish from.
	// Cleanup treats any nonzero count as a reason to defer reaping this
	// cycle, mirroring the reference-counted handle the room's own mutex
	// alone cannot express (a reference can be held without r.mu locked).
	refs atomic.Int32

	GuildID          string
	ChannelID        string
	CreatedAt        time.Time // monotonic clock reading at creation
	CreatedTimestamp time.Time // wall-clock reading at creation, never updated

	idleTimeout time.Duration
	expiresAt   *time.Time

	order        []string // user ids, insertion order
	participants map[string]*participant.Participant
}

// Acquire registers an external reference to the room, deferring any
// concurrent Cleanup cycle until the matching Release. Callers that hold a
// *Room across more than one call (e.g. RoomManager.Room followed later by
// Snapshot and a publish RPC) must Acquire before use and Release when done.
func (r *Room) Acquire() { r.refs.Add(1) }

// Release drops a reference taken by Acquire.
func (r *Room) Release() { r.refs.Add(-1) }

// refCount reports the number of outstanding external references.
func (r *Room) refCount() int32 { return r.refs.Load() }

// New constructs an empty Room for channelID in guildID, created at now.
func New(channelID, guildID string, now time.Time, idleTimeout time.Duration) *Room {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Room{
		GuildID:          guildID,
		ChannelID:        channelID,
		CreatedAt:        now,
		CreatedTimestamp: now,
		idleTimeout:      idleTimeout,
		participants:     make(map[string]*participant.Participant),
	}
}

// HandleConnect looks up or inserts a Participant for userID and appends an
// open Activity. The room's expiry is cleared: an active connection means
// the room is occupied again.
func (r *Room) HandleConnect(now time.Time, userID, name, avatarURL string, flags activity.Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handleConnectLocked(now, userID, name, avatarURL, flags)
}

// handleConnectLocked is HandleConnect's body, assuming r.mu is already
// held. It exists so RoomManager can implement the shard/room lock-upgrade
// pattern (acquire room lock before releasing the shard lock) without
// double-locking r.mu.
func (r *Room) handleConnectLocked(now time.Time, userID, name, avatarURL string, flags activity.Flags) error {
	p, ok := r.participants[userID]
	if !ok {
		p = participant.New(userID, name, avatarURL, r.GuildID)
		r.participants[userID] = p
		r.order = append(r.order, userID)
	} else {
		// Refresh display name / avatar so renamed or re-avatared users show
		// their current identity without waiting for a new Room.
		p.Name = name
		p.AvatarURL = avatarURL
	}

	if err := p.Connect(now, flags); err != nil {
		return err
	}
	r.expiresAt = nil
	return nil
}

// HandleDisconnect seals the named participant's open Activity. If no
// participant in the room retains an open Activity the room becomes Idle
// and its expiry is set to now + idleTimeout.
func (r *Room) HandleDisconnect(now time.Time, userID string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return Occupied, ErrParticipantNotFound
	}

	if err := p.Disconnect(now); err != nil {
		return Occupied, err
	}

	if r.anyConnectedLocked() {
		return Occupied, nil
	}

	expires := now.Add(r.idleTimeout)
	r.expiresAt = &expires
	return Idle, nil
}

// HandleUpdate delegates to the named participant's Update.
func (r *Room) HandleUpdate(now time.Time, userID string, flags activity.Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[userID]
	if !ok {
		return ErrParticipantNotFound
	}
	return p.Update(now, flags)
}

// HasExpired reports whether the room's expiry has elapsed.
func (r *Room) HasExpired(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expiresAt != nil && now.After(*r.expiresAt)
}

// connectedCount returns the number of participants currently connected.
func (r *Room) connectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectedCountLocked()
}

// connectedCountLocked is connectedCount's body, assuming r.mu is already held.
func (r *Room) connectedCountLocked() int {
	n := 0
	for _, userID := range r.order {
		if r.participants[userID].IsConnected() {
			n++
		}
	}
	return n
}

func (r *Room) anyConnectedLocked() bool {
	for _, userID := range r.order {
		if r.participants[userID].IsConnected() {
			return true
		}
	}
	return false
}

// Snapshot is a cheap, independent copy of the Room's participant list and
// scalar fields, safe to read without the Room's lock. It is taken once
// under the lock and handed to the Transformer and renderer, which never
// block on a Room mutex.
type Snapshot struct {
	GuildID          string
	ChannelID        string
	CreatedAt        time.Time
	CreatedTimestamp time.Time
	Participants     []*participant.Participant // insertion order, each independently cloned
}

// Snapshot clones the room's current state for use outside the room's lock.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := make([]*participant.Participant, 0, len(r.order))
	for _, userID := range r.order {
		participants = append(participants, r.participants[userID].Clone())
	}

	return Snapshot{
		GuildID:          r.GuildID,
		ChannelID:        r.ChannelID,
		CreatedAt:        r.CreatedAt,
		CreatedTimestamp: r.CreatedTimestamp,
		Participants:     participants,
	}
}
