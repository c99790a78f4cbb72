// Package report orchestrates turning a Room snapshot into a published
// or edited chat message: build Timeline, render PNG, then either
// send a new report or edit the existing one in place, rate-limiting
// terminal (call-ended) emissions so a flapping disconnect doesn't spam
// edits.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/callwatch/backend/internal/v1/asset"
	"github.com/callwatch/backend/internal/v1/layout"
	"github.com/callwatch/backend/internal/v1/logging"
	"github.com/callwatch/backend/internal/v1/metrics"
	"github.com/callwatch/backend/internal/v1/render"
	"github.com/callwatch/backend/internal/v1/roomstate"
	"github.com/callwatch/backend/internal/v1/tracker"
	"github.com/callwatch/backend/internal/v1/transform"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/callwatch/backend/internal/v1/report")

// Embed is the chat-platform message body accompanying the rendered
// attachment.
type Embed struct {
	Title       string
	Description string
	Start       string
	Elapsed     string
	History     string
	Footer      string
	Timestamp   time.Time
}

// Publisher is the outbound chat-platform surface the orchestrator
// needs: create and edit a message carrying an embed and a PNG
// attachment, with notifications suppressed.
type Publisher interface {
	SendMessage(ctx context.Context, channelID string, embed Embed, png []byte) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID string, embed Embed, png []byte) error
}

// VisualStore resolves a participant's cached Visual, building it if
// necessary.
type VisualStore interface {
	GetOrBuild(ctx context.Context, guildID, userID, avatarURL string) (*asset.Visual, error)
}

// Pool dispatches CPU-bound work (rasterization) off the caller's
// goroutine.
type Pool interface {
	Submit(fn func())
}

// EmbedBuilder constructs the Embed for one emission from the room
// snapshot. Kept as a function so callers can customize copy without
// reaching into Service internals.
type EmbedBuilder func(snapshot roomstate.Snapshot, now time.Time, ongoing bool) Embed

// Service is the ReportService orchestrator.
type Service struct {
	assets          VisualStore
	publisher       Publisher
	pool            Pool
	tracker         *tracker.Tracker
	layoutConfig    layout.Config
	reportChannelID string
	terminalRate    time.Duration
	buildEmbed      EmbedBuilder

	mu sync.Mutex // serializes per-channel Tracker + publish, see §5

	renderCacheMu sync.RWMutex
	renderCache   map[string][]byte // channel id -> most recently rendered PNG, for admin introspection
}

// NewService constructs a ReportService. reportChannelID, if
// non-empty, overrides the source channel for every emission.
func NewService(assets VisualStore, publisher Publisher, pool Pool, trk *tracker.Tracker, layoutConfig layout.Config, reportChannelID string, terminalRate time.Duration, buildEmbed EmbedBuilder) *Service {
	if terminalRate <= 0 {
		terminalRate = 20 * time.Second
	}
	return &Service{
		assets:          assets,
		publisher:       publisher,
		pool:            pool,
		tracker:         trk,
		layoutConfig:    layoutConfig,
		reportChannelID: reportChannelID,
		terminalRate:    terminalRate,
		buildEmbed:      buildEmbed,
		renderCache:     make(map[string][]byte),
	}
}

// LastRenderedPNG returns the most recently rendered timeline image
// for channelID, if one has been produced yet. Used by the admin
// HTTP surface's thumbnail endpoint.
func (s *Service) LastRenderedPNG(channelID string) ([]byte, bool) {
	s.renderCacheMu.RLock()
	defer s.renderCacheMu.RUnlock()
	png, ok := s.renderCache[channelID]
	return png, ok
}

func (s *Service) targetChannel(sourceChannelID string) string {
	if s.reportChannelID != "" {
		return s.reportChannelID
	}
	return sourceChannelID
}

// SendRoomReport builds and publishes (or edits) the report for one
// room snapshot. ongoing marks a periodic refresh; false marks the
// call's terminal report (every participant disconnected).
func (s *Service) SendRoomReport(ctx context.Context, now time.Time, snapshot roomstate.Snapshot, ongoing bool) error {
	ctx, span := tracer.Start(ctx, "report.send_room_report",
		trace.WithAttributes(
			attribute.String("channel_id", snapshot.ChannelID),
			attribute.Bool("ongoing", ongoing),
		))
	defer span.End()

	visuals := s.resolveVisuals(ctx, snapshot)
	tl := transform.Build(snapshot, visuals, now)

	var png []byte
	var renderErr error
	done := make(chan struct{})
	work := func() {
		defer close(done)
		png, renderErr = render.Render(s.layoutConfig, tl)
	}
	if s.pool != nil {
		s.pool.Submit(work)
	} else {
		work()
	}
	<-done
	if renderErr != nil {
		metrics.ReportsTotal.WithLabelValues("send", "render_error").Inc()
		span.RecordError(renderErr)
		return fmt.Errorf("report: render: %w", renderErr)
	}

	s.renderCacheMu.Lock()
	s.renderCache[snapshot.ChannelID] = png
	s.renderCacheMu.Unlock()

	embed := s.buildEmbed(snapshot, now, ongoing)
	channelID := s.targetChannel(snapshot.ChannelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	track, hasTrack := s.tracker.Get(channelID)
	if hasTrack {
		if !ongoing && track.LastUpdatedAt.Add(s.terminalRate).After(now) {
			metrics.ReportsTotal.WithLabelValues("edit", "rate_limited").Inc()
			return nil
		}

		if err := s.publisher.EditMessage(ctx, channelID, track.MessageID, embed, png); err != nil {
			metrics.ReportsTotal.WithLabelValues("edit", "error").Inc()
			span.RecordError(err)
			return fmt.Errorf("report: edit message: %w", err)
		}
		if ongoing {
			s.tracker.Update(channelID, now)
		} else {
			s.tracker.Remove(channelID)
		}
		metrics.ReportsTotal.WithLabelValues("edit", "ok").Inc()
		return nil
	}

	messageID, err := s.publisher.SendMessage(ctx, channelID, embed, png)
	if err != nil {
		metrics.ReportsTotal.WithLabelValues("send", "error").Inc()
		span.RecordError(err)
		return fmt.Errorf("report: send message: %w", err)
	}
	if ongoing {
		s.tracker.Add(channelID, messageID, now)
	}
	metrics.ReportsTotal.WithLabelValues("send", "ok").Inc()
	return nil
}

// resolveVisuals best-effort builds every participant's Visual,
// skipping and logging any that fail (AssetError per §7): the
// Transformer then simply omits them from the Timeline.
func (s *Service) resolveVisuals(ctx context.Context, snapshot roomstate.Snapshot) map[string]*asset.Visual {
	visuals := make(map[string]*asset.Visual, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		v, err := s.assets.GetOrBuild(ctx, snapshot.GuildID, p.UserID, p.AvatarURL)
		if err != nil {
			logging.Warn(ctx, "skipping participant with unavailable visual",
				zap.String("channel_id", snapshot.ChannelID),
				zap.String("user_id", p.UserID),
				zap.Error(err))
			continue
		}
		visuals[p.UserID] = v
	}
	return visuals
}

// RefreshAll calls SendRoomReport(ongoing=true) for every room in
// rooms, swallowing per-room failures so one bad render does not
// poison the tick for other channels (§7 propagation policy).
func (s *Service) RefreshAll(ctx context.Context, now time.Time, rooms []*roomstate.Room) {
	for _, room := range rooms {
		snapshot := room.Snapshot()
		if err := s.SendRoomReport(ctx, now, snapshot, true); err != nil {
			logging.Warn(ctx, "periodic report refresh failed",
				zap.String("channel_id", snapshot.ChannelID), zap.Error(err))
		}
	}
}

