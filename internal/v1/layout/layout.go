// Package layout computes pixel rectangles for the timeline image from
// a participant count and a set of size policies. It is pure
// arithmetic: no I/O, no corpus library addresses this concern.
package layout

// Margin is the whitespace reserved on each edge of the image.
type Margin struct {
	Left, Top, Right, Bottom float64
}

func (m Margin) horizontal() float64 { return m.Left + m.Right }
func (m Margin) vertical() float64   { return m.Top + m.Bottom }

// Rect is an axis-aligned pixel rectangle, origin top-left.
type Rect struct {
	X, Y, W, H float64
}

// Config holds the size policies LayoutEngine.Calculate needs.
type Config struct {
	Margin            Margin
	AvatarColumnWidth float64
	LabelAreaHeight   float64
	EntryHeight       float64
	AvatarSize        float64
	MinTimelineWidth  float64
	AspectW, AspectH  float64 // target width:height ratio, default 4:3
}

// DefaultConfig returns the policy set used when no explicit
// configuration is supplied.
func DefaultConfig() Config {
	return Config{
		Margin:            Margin{Left: 16, Top: 16, Right: 16, Bottom: 16},
		AvatarColumnWidth: 72,
		LabelAreaHeight:   40,
		EntryHeight:       56,
		AvatarSize:        48,
		MinTimelineWidth:  480,
		AspectW:           4,
		AspectH:           3,
	}
}

// Layout is the set of rectangles derived from a Config and an entry
// count, ready for the renderer to draw into.
type Layout struct {
	cfg          Config
	entries      int
	TotalWidth   float64
	TotalHeight  float64
	TimelineX    float64
	TimelineW    float64
}

// Calculate derives a Layout for nEntries participant rows. Total
// height is the label area plus one row per entry plus vertical
// margins; timeline width is whichever is larger of the configured
// minimum or the width implied by the aspect-ratio target.
func Calculate(cfg Config, nEntries int) Layout {
	if cfg.AspectW <= 0 || cfg.AspectH <= 0 {
		cfg.AspectW, cfg.AspectH = 4, 3
	}

	totalHeight := cfg.LabelAreaHeight + float64(nEntries)*cfg.EntryHeight + cfg.Margin.vertical()

	timelineW := cfg.AspectW/cfg.AspectH*totalHeight - (cfg.AvatarColumnWidth + cfg.Margin.horizontal())
	if timelineW < cfg.MinTimelineWidth {
		timelineW = cfg.MinTimelineWidth
	}

	totalWidth := timelineW + cfg.AvatarColumnWidth + cfg.Margin.horizontal()

	return Layout{
		cfg:         cfg,
		entries:     nEntries,
		TotalWidth:  totalWidth,
		TotalHeight: totalHeight,
		TimelineX:   cfg.Margin.Left + cfg.AvatarColumnWidth,
		TimelineW:   timelineW,
	}
}

// FullTimelineBB is the rectangle spanning every entry's bar row, used
// for drawing tick gridlines and end-caps.
func (l Layout) FullTimelineBB() Rect {
	return Rect{
		X: l.TimelineX,
		Y: l.cfg.Margin.Top + l.cfg.LabelAreaHeight,
		W: l.TimelineW,
		H: float64(l.entries) * l.cfg.EntryHeight,
	}
}

// rowTop returns the y coordinate of the i-th entry's row.
func (l Layout) rowTop(i int) float64 {
	return l.cfg.Margin.Top + l.cfg.LabelAreaHeight + float64(i)*l.cfg.EntryHeight
}

// HeadlineBB is the avatar cell for entry i.
func (l Layout) HeadlineBB(i int) Rect {
	top := l.rowTop(i)
	avatarY := top + (l.cfg.EntryHeight-l.cfg.AvatarSize)/2
	return Rect{
		X: l.cfg.Margin.Left + (l.cfg.AvatarColumnWidth-l.cfg.AvatarSize)/2,
		Y: avatarY,
		W: l.cfg.AvatarSize,
		H: l.cfg.AvatarSize,
	}
}

// TimelineBBForEntry is the bar cell for entry i. The bar occupies
// vertical ratios [3/14, 11/14] of the row (a 4/7-height centered
// strip).
func (l Layout) TimelineBBForEntry(i int) Rect {
	top := l.rowTop(i)
	return Rect{
		X: l.TimelineX,
		Y: top + (3.0/14.0)*l.cfg.EntryHeight,
		W: l.TimelineW,
		H: (11.0/14.0 - 3.0/14.0) * l.cfg.EntryHeight,
	}
}
