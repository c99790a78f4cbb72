// Package transform implements the pure Room-snapshot + Visuals + clock
// -> Timeline step. It performs no I/O and holds no locks; given equal
// inputs it always produces byte-identical output.
package transform

import (
	"fmt"
	"math"
	"time"

	"github.com/callwatch/backend/internal/v1/activity"
	"github.com/callwatch/backend/internal/v1/asset"
	"github.com/callwatch/backend/internal/v1/roomstate"
	"github.com/callwatch/backend/internal/v1/timeline"
)

// autoScaleFrames is the ordered set of candidate window lengths for
// the right edge of the rendered timeline.
var autoScaleFrames = []time.Duration{
	time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	3 * time.Hour,
	4 * time.Hour,
	6 * time.Hour,
	8 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// tickCandidates is the ordered set of candidate grid intervals.
var tickCandidates = []time.Duration{
	10 * time.Second,
	time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
}

// AutoScale picks the smallest frame from autoScaleFrames strictly
// greater than elapsed (now - createdAt); falling back to
// ceil(days)*24h if elapsed exceeds every candidate.
func AutoScale(createdAt, now time.Time) time.Time {
	elapsed := now.Sub(createdAt)
	for _, frame := range autoScaleFrames {
		if frame > elapsed {
			return createdAt.Add(frame)
		}
	}
	days := math.Ceil(elapsed.Hours() / 24)
	return createdAt.Add(time.Duration(days) * 24 * time.Hour)
}

// ChooseTick picks the smallest candidate tick such that
// duration/tick < 10, falling back to 24h.
func ChooseTick(duration time.Duration) time.Duration {
	for _, tick := range tickCandidates {
		if float64(duration)/float64(tick) < 10 {
			return tick
		}
	}
	return 24 * time.Hour
}

// Build runs the Transformer: given a Room snapshot, the Visuals for
// its participants, and the current instant, it produces an immutable
// Timeline. Participants with no cached Visual are skipped (best-effort
// mode per §4.10); the caller is responsible for ensuring Visuals are
// built ahead of time when completeness matters.
func Build(snapshot roomstate.Snapshot, visuals map[string]*asset.Visual, now time.Time) timeline.Timeline {
	terminatedAt := AutoScale(snapshot.CreatedAt, now)
	duration := terminatedAt.Sub(snapshot.CreatedAt)
	tick := ChooseTick(duration)

	t := timeline.Timeline{
		CreatedAt:       snapshot.CreatedAt,
		TerminatedAt:    terminatedAt,
		CreatedWallTime: snapshot.CreatedTimestamp,
		TickInterval:    tick,
		Ticks:           buildTicks(snapshot.CreatedAt, terminatedAt, tick),
	}

	for _, p := range snapshot.Participants {
		v, ok := visuals[p.UserID]
		if !ok {
			continue
		}
		t.Entries = append(t.Entries, timeline.Entry{
			UserID:            p.UserID,
			Name:              p.Name,
			Bitmap:            v.Bitmap,
			ActiveColor:       v.ActiveColor,
			InactiveColor:     v.InactiveColor,
			StreamingColor:    v.StreamingColor,
			VoiceSections:     voiceSections(p.History, snapshot.CreatedAt, terminatedAt, now),
			StreamingSections: streamingSections(p.History, snapshot.CreatedAt, terminatedAt, now),
		})
	}

	return t
}

func buildTicks(createdAt, terminatedAt time.Time, tick time.Duration) []timeline.Tick {
	var ticks []timeline.Tick
	lastDate := createdAt
	for at := createdAt.Add(tick); at.Before(terminatedAt); at = at.Add(tick) {
		ticks = append(ticks, timeline.Tick{At: at, Label: formatTickLabel(at, lastDate, tick)})
		lastDate = at
	}
	return ticks
}

func formatTickLabel(at, prev time.Time, tick time.Duration) string {
	var prefix string
	if at.Year() != prev.Year() {
		prefix = fmt.Sprintf("%04d/%02d/%02d\n", at.Year(), at.Month(), at.Day())
	} else if at.YearDay() != prev.YearDay() {
		prefix = fmt.Sprintf("%02d/%02d\n", at.Month(), at.Day())
	}

	if tick < time.Minute {
		return fmt.Sprintf("%s%d:%02d:%02d", prefix, at.Hour(), at.Minute(), at.Second())
	}
	return fmt.Sprintf("%s%d:%02d", prefix, at.Hour(), at.Minute())
}

func clipRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func ratio(t, createdAt, terminatedAt time.Time) float64 {
	total := terminatedAt.Sub(createdAt)
	if total <= 0 {
		return 0
	}
	return clipRatio(float64(t.Sub(createdAt)) / float64(total))
}

func fillStyle(flags activity.Flags) timeline.FillStyle {
	switch {
	case flags.Deafened:
		return timeline.Deafened
	case flags.Muted:
		return timeline.Muted
	default:
		return timeline.Active
	}
}

func voiceSections(history []activity.Activity, createdAt, terminatedAt, now time.Time) []timeline.Section {
	sections := make([]timeline.Section, 0, len(history))
	for _, a := range history {
		end := a.End
		if a.IsOpen() {
			end = now
		}
		sections = append(sections, timeline.Section{
			StartRatio: ratio(a.Start, createdAt, terminatedAt),
			EndRatio:   ratio(end, createdAt, terminatedAt),
			Style:      fillStyle(a.Flags),
		})
	}
	return sections
}

// streamingSections folds contiguous runs of adjacent, screen-sharing
// Activities into single ratio sections. A run closes at the first
// non-streaming Activity, the first disjoint (reconnect) Activity, or
// the open tail (using now as its end).
func streamingSections(history []activity.Activity, createdAt, terminatedAt, now time.Time) []timeline.Section {
	var sections []timeline.Section
	var runStart time.Time
	inRun := false

	flush := func(end time.Time) {
		if inRun {
			sections = append(sections, timeline.Section{
				StartRatio: ratio(runStart, createdAt, terminatedAt),
				EndRatio:   ratio(end, createdAt, terminatedAt),
			})
			inRun = false
		}
	}

	var prev activity.Activity
	havePrev := false
	for _, a := range history {
		disjoint := havePrev && !a.IsFollowing(prev)
		if disjoint {
			flush(prev.End)
		}

		if a.Flags.SharingScreen {
			if !inRun {
				runStart = a.Start
				inRun = true
			}
		} else {
			end := a.Start
			flush(end)
		}

		prev = a
		havePrev = true
	}

	if inRun {
		end := prev.End
		if prev.IsOpen() {
			end = now
		}
		flush(end)
	}

	return sections
}
