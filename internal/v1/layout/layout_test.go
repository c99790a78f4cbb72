package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate_TotalHeightFormula(t *testing.T) {
	cfg := DefaultConfig()
	l := Calculate(cfg, 3)
	want := cfg.LabelAreaHeight + 3*cfg.EntryHeight + cfg.Margin.vertical()
	assert.Equal(t, want, l.TotalHeight)
}

func TestCalculate_RespectsMinimumTimelineWidth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTimelineWidth = 10000
	l := Calculate(cfg, 1)
	assert.Equal(t, 10000.0, l.TimelineW)
}

func TestCalculate_UsesAspectRatioWhenAboveMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTimelineWidth = 1
	l := Calculate(cfg, 10)
	expected := cfg.AspectW/cfg.AspectH*l.TotalHeight - (cfg.AvatarColumnWidth + cfg.Margin.horizontal())
	assert.InDelta(t, expected, l.TimelineW, 1e-9)
}

func TestTimelineBBForEntry_OccupiesExpectedVerticalStrip(t *testing.T) {
	cfg := DefaultConfig()
	l := Calculate(cfg, 1)
	bar := l.TimelineBBForEntry(0)
	rowTop := l.rowTop(0)
	assert.InDelta(t, rowTop+(3.0/14.0)*cfg.EntryHeight, bar.Y, 1e-9)
	assert.InDelta(t, (11.0/14.0-3.0/14.0)*cfg.EntryHeight, bar.H, 1e-9)
}

func TestHeadlineBB_CenteredInAvatarColumn(t *testing.T) {
	cfg := DefaultConfig()
	l := Calculate(cfg, 2)
	bb := l.HeadlineBB(1)
	assert.Equal(t, cfg.AvatarSize, bb.W)
	assert.Equal(t, cfg.AvatarSize, bb.H)
}

func TestFullTimelineBB_SpansAllEntries(t *testing.T) {
	cfg := DefaultConfig()
	l := Calculate(cfg, 4)
	bb := l.FullTimelineBB()
	assert.Equal(t, 4*cfg.EntryHeight, bb.H)
	assert.Equal(t, l.TimelineW, bb.W)
}
