// Package timeline holds the immutable view model produced by the
// Transformer and consumed by the TimelineRenderer: Timeline, its
// per-participant entries, and the section/tick types they're built
// from.
package timeline

import (
	"image"
	"image/color"
	"time"
)

// FillStyle determines the shader used to paint one voice section.
type FillStyle int

const (
	// Active is the solid dominant-color fill: unmuted, undeafened.
	Active FillStyle = iota
	// Muted is the hatched fill used while the participant is
	// self- or server-muted but not deafened.
	Muted
	// Deafened is the solid inactive-color fill.
	Deafened
)

// Section is one voice or streaming interval expressed as ratios of
// the timeline's total duration, clipped to [0, 1].
type Section struct {
	StartRatio float64
	EndRatio   float64
	Style      FillStyle // meaningful only for voice sections
}

// Entry is one participant's row: their avatar and colors, plus the
// disjoint voice and streaming section sequences derived from their
// activity history.
type Entry struct {
	UserID            string
	Name              string
	Bitmap            *image.RGBA
	ActiveColor       color.RGBA
	InactiveColor     color.RGBA
	StreamingColor    color.RGBA
	VoiceSections     []Section
	StreamingSections []Section
}

// Tick is one labeled gridline on the time axis.
type Tick struct {
	At    time.Time
	Label string
}

// Timeline is the complete, immutable view model for one rendered
// report: the time window, its grain, and every participant entry.
type Timeline struct {
	CreatedAt       time.Time
	TerminatedAt    time.Time
	CreatedWallTime time.Time
	TickInterval    time.Duration
	Ticks           []Tick
	Entries         []Entry
}
