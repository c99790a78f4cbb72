package gateway

import (
	"context"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/callwatch/backend/internal/v1/roomstate"
	"go.uber.org/zap"
)

// RoomEventHandler is the subset of roomstate.Manager the adapter
// drives. Kept as an interface so tests can substitute a fake.
type RoomEventHandler interface {
	HandleConnectEvent(now time.Time, channelID, guildID, userID, name, avatarURL string, flags activity.Flags) error
	HandleDisconnectEvent(now time.Time, channelID, userID string) (roomstate.Status, error)
	HandleUpdateEvent(now time.Time, channelID, userID string, flags activity.Flags) error
	// Room returns the live Room for channelID with an external reference
	// already held (see roomstate.Room.Acquire); the caller must Release it.
	Room(channelID string) (*roomstate.Room, bool)
}

// ReportSender is the subset of report.Service the adapter needs to drive
// the "(on connect) ReportService" step of the data flow in spec.md:33, plus
// the terminal emission once a room goes idle.
type ReportSender interface {
	SendRoomReport(ctx context.Context, now time.Time, snapshot roomstate.Snapshot, ongoing bool) error
}

// EventAdapter translates gateway events into RoomManager calls per
// the translation table in §6: cache-ready entries become synthetic
// connects, and voice-state-update pairs are classified by which side
// of (old, new) carries a channel id. Every connect additionally
// triggers an immediate report emission, and a disconnect that leaves
// the room idle triggers the terminal (ongoing=false) emission.
type EventAdapter struct {
	rooms   RoomEventHandler
	reports ReportSender
	clock   Clock
}

// NewEventAdapter constructs an EventAdapter. clock defaults to
// time.Now when nil. reports may be nil, in which case connect/terminal
// report emission is skipped (useful for tests exercising only event
// translation).
func NewEventAdapter(rooms RoomEventHandler, reports ReportSender, clock Clock) *EventAdapter {
	if clock == nil {
		clock = time.Now
	}
	return &EventAdapter{rooms: rooms, reports: reports, clock: clock}
}

func deriveFlags(v *VoiceState) activity.Flags {
	return activity.Flags{
		Muted:         v.ServerMute || v.SelfMute,
		Deafened:      v.ServerDeaf || v.SelfDeaf,
		SharingScreen: v.SelfStream,
	}
}

// HandleCacheReady emits a synthetic connect event for every entry
// already present in a voice channel when the process started.
func (a *EventAdapter) HandleCacheReady(entries []CacheReadyEntry) {
	now := a.clock()
	for _, e := range entries {
		if err := a.rooms.HandleConnectEvent(now, e.ChannelID, e.GuildID, e.UserID, e.Name, e.AvatarURL, activity.Flags{}); err != nil {
			a.logDropped(e.ChannelID, e.UserID, err)
			continue
		}
		metrics.GatewayEventsTotal.WithLabelValues("connect", "ok").Inc()
		a.reportOngoing(now, e.ChannelID)
	}
}

// HandleVoiceStateUpdate applies the translation table from §6:
//
//	old = nil                          -> connect(new.channel)
//	new.channel = ""                   -> disconnect(old.channel)
//	both set, same channel             -> update(channel, flags)
//	both set, different channels       -> disconnect(old.channel) then connect(new.channel)
func (a *EventAdapter) HandleVoiceStateUpdate(update VoiceStateUpdate) {
	now := a.clock()

	switch {
	case update.Old == nil && update.New != nil && update.New.ChannelID != "":
		a.connect(now, update.New)

	case update.New == nil || update.New.ChannelID == "":
		if update.Old != nil {
			a.disconnect(now, update.Old.ChannelID, update.Old.UserID)
		}

	case update.Old.ChannelID == update.New.ChannelID:
		a.update(now, update.New)

	default:
		a.disconnect(now, update.Old.ChannelID, update.Old.UserID)
		a.connect(now, update.New)
	}
}

func (a *EventAdapter) connect(now time.Time, v *VoiceState) {
	flags := deriveFlags(v)
	if err := a.rooms.HandleConnectEvent(now, v.ChannelID, v.GuildID, v.UserID, v.Name, v.AvatarURL, flags); err != nil {
		a.logDropped(v.ChannelID, v.UserID, err)
		return
	}
	metrics.GatewayEventsTotal.WithLabelValues("connect", "ok").Inc()
	a.reportOngoing(now, v.ChannelID)
}

func (a *EventAdapter) disconnect(now time.Time, channelID, userID string) {
	status, err := a.rooms.HandleDisconnectEvent(now, channelID, userID)
	if err != nil {
		a.logDropped(channelID, userID, err)
		return
	}
	metrics.GatewayEventsTotal.WithLabelValues("disconnect", "ok").Inc()
	if status == roomstate.Idle {
		a.reportTerminal(now, channelID)
	}
}

func (a *EventAdapter) update(now time.Time, v *VoiceState) {
	flags := deriveFlags(v)
	if err := a.rooms.HandleUpdateEvent(now, v.ChannelID, v.UserID, flags); err != nil {
		a.logDropped(v.ChannelID, v.UserID, err)
		return
	}
	metrics.GatewayEventsTotal.WithLabelValues("update", "ok").Inc()
}

// reportOngoing implements spec.md:33's "(on connect) ReportService" step:
// fetch the just-mutated Room, snapshot it, and publish or edit-in-place
// immediately rather than waiting for the next periodic refresh tick.
func (a *EventAdapter) reportOngoing(now time.Time, channelID string) {
	a.sendReport(now, channelID, true)
}

// reportTerminal sends the call's terminal (ongoing=false) report once a
// disconnect leaves the room with no open Activity, per §4.10/§7 scenario S6.
func (a *EventAdapter) reportTerminal(now time.Time, channelID string) {
	a.sendReport(now, channelID, false)
}

func (a *EventAdapter) sendReport(now time.Time, channelID string, ongoing bool) {
	if a.reports == nil {
		return
	}
	room, ok := a.rooms.Room(channelID)
	if !ok {
		return
	}
	defer room.Release()

	snapshot := room.Snapshot()
	ctx := context.Background()
	if err := a.reports.SendRoomReport(ctx, now, snapshot, ongoing); err != nil {
		logging.Warn(ctx, "failed to send room report from event adapter",
			zap.String("channel_id", channelID), zap.Bool("ongoing", ongoing), zap.Error(err))
	}
}

func (a *EventAdapter) logDropped(channelID, userID string, err error) {
	metrics.GatewayEventsTotal.WithLabelValues("event", "dropped").Inc()
	logging.Warn(context.Background(), "dropping gateway event after room error",
		zap.String("channel_id", channelID), zap.String("user_id", userID), zap.Error(err))
}
