package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/callwatch/backend/internal/v1/roomstate"
)

// DefaultEmbedBuilder renders the textual summary accompanying the
// timeline attachment: start time, elapsed duration, and a
// per-participant cumulative talk time line. The host chat platform's
// embed wire format is out of scope; this only fills the semantic
// fields the Publisher serializes.
func DefaultEmbedBuilder(snapshot roomstate.Snapshot, now time.Time, ongoing bool) Embed {
	elapsed := now.Sub(snapshot.CreatedTimestamp)
	if elapsed < 0 {
		elapsed = 0
	}

	status := "Call ended"
	if ongoing {
		status = "Call in progress"
	}

	lines := make([]string, 0, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		lines = append(lines, fmt.Sprintf("%s — %s", p.Name, formatDuration(p.CumulativeDuration(now))))
	}

	return Embed{
		Title:       status,
		Description: fmt.Sprintf("%d participant(s)", len(snapshot.Participants)),
		Start:       snapshot.CreatedTimestamp.UTC().Format(time.RFC3339),
		Elapsed:     formatDuration(elapsed),
		History:     strings.Join(lines, "\n"),
		Footer:      snapshot.ChannelID,
		Timestamp:   now,
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
