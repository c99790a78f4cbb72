package roomstate

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/metrics"
	"go.uber.org/zap"
)

// shard owns a slice of the channel-keyed room map, guarded by its own mutex.
// Rooms carry their own inner mutex so a shard lock is only ever held for
// map-level operations, never across a Room mutation or an RPC.
type shard struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// Manager is a sharded, concurrent registry of Rooms keyed by channel id.
// All events for a given channel hash to the same shard, giving per-channel
// sequential consistency without a single global lock.
type Manager struct {
	shards      []*shard
	idleTimeout time.Duration
}

// NewManager constructs a Manager with shardCount independently-locked
// shards. shardCount defaults to 16 if non-positive.
func NewManager(shardCount int, idleTimeout time.Duration) *Manager {
	if shardCount <= 0 {
		shardCount = 16
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{rooms: make(map[string]*Room)}
	}
	return &Manager{shards: shards, idleTimeout: idleTimeout}
}

func (m *Manager) shardFor(channelID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(channelID))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

// getOrCreateLocked returns the Room for channelID, creating it if absent.
// Caller must hold s.mu.
func (s *shard) getOrCreateLocked(channelID, guildID string, now time.Time, idleTimeout time.Duration) *Room {
	if room, ok := s.rooms[channelID]; ok {
		return room
	}
	room := New(channelID, guildID, now, idleTimeout)
	s.rooms[channelID] = room
	metrics.RoomsActive.Inc()
	return room
}

// HandleConnectEvent routes a connect to the owning shard using the
// lock-upgrade pattern: the room's own lock is taken while the shard lock is
// still held, and only then is the shard lock released, so a reaper walking
// the shard's map can never remove a room in the gap between its creation
// and its first mutation.
func (m *Manager) HandleConnectEvent(now time.Time, channelID, guildID, userID, name, avatarURL string, flags activity.Flags) error {
	s := m.shardFor(channelID)
	s.mu.Lock()
	room := s.getOrCreateLocked(channelID, guildID, now, m.idleTimeout)
	room.mu.Lock()
	s.mu.Unlock()
	defer room.mu.Unlock()

	if err := room.handleConnectLocked(now, userID, name, avatarURL, flags); err != nil {
		return err
	}
	metrics.RoomParticipants.WithLabelValues(channelID).Set(float64(room.connectedCountLocked()))
	return nil
}

// HandleDisconnectEvent routes a disconnect to the owning shard. If the
// channel is unknown the event pre-dates this manager's first observation of
// the channel and is silently dropped.
func (m *Manager) HandleDisconnectEvent(now time.Time, channelID, userID string) (Status, error) {
	s := m.shardFor(channelID)
	s.mu.Lock()
	room, ok := s.rooms[channelID]
	s.mu.Unlock()
	if !ok {
		return Idle, nil
	}
	status, err := room.HandleDisconnect(now, userID)
	metrics.RoomParticipants.WithLabelValues(channelID).Set(float64(room.connectedCount()))
	return status, err
}

// HandleUpdateEvent routes a flag update to the owning shard, with the same
// absence policy as HandleDisconnectEvent.
func (m *Manager) HandleUpdateEvent(now time.Time, channelID, userID string, flags activity.Flags) error {
	s := m.shardFor(channelID)
	s.mu.Lock()
	room, ok := s.rooms[channelID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return room.HandleUpdate(now, userID, flags)
}

// Room returns the live Room for channelID, if any, with an external
// reference already taken (see Room.Acquire). The caller must call
// Release on the returned Room once done with it — e.g. the EventAdapter's
// post-connect and terminal-report paths hold the reference across a
// Snapshot plus a publish RPC, a window Cleanup must not reap across.
func (m *Manager) Room(channelID string) (*Room, bool) {
	s := m.shardFor(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[channelID]
	if !ok {
		return nil, false
	}
	room.Acquire()
	return room, true
}

// SnapshotAll walks every shard under its lock, collecting a reference to
// every live Room. The returned slice is safe to range over without holding
// any shard lock.
func (m *Manager) SnapshotAll() []*Room {
	var all []*Room
	for _, s := range m.shards {
		s.mu.Lock()
		for _, room := range s.rooms {
			all = append(all, room)
		}
		s.mu.Unlock()
	}
	return all
}

// Cleanup walks every shard, removing rooms that are expired as of now. A
// room with any outstanding external reference (see Room.Acquire) is always
// retained this cycle, mirroring a reference-counted-handle liveness check;
// a room whose inner mutex cannot be acquired without blocking is likewise
// deferred. Either guard alone can be raced by a caller that has fetched a
// *Room but not yet locked or Acquired it, so both are checked.
func (m *Manager) Cleanup(now time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for channelID, room := range s.rooms {
			if room.refCount() > 0 {
				continue // externally referenced; defer to next cycle
			}
			if !room.mu.TryLock() {
				continue // held elsewhere; defer to next cycle
			}
			expired := room.expiresAt != nil && now.After(*room.expiresAt)
			room.mu.Unlock()
			if expired {
				delete(s.rooms, channelID)
				metrics.RoomsActive.Dec()
				metrics.RoomParticipants.DeleteLabelValues(channelID)
				removed++
				logging.Info(context.Background(), "reaped idle room", zap.String("channel_id", channelID))
			}
		}
		s.mu.Unlock()
	}
	return removed
}
