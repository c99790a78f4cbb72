// Package render implements the TimelineRenderer: a pure, synchronous,
// CPU-bound Timeline -> PNG rasterizer, plus the bounded worker pool
// (pool.go) used to keep that work off the cooperative event loop.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/callwatch/backend/internal/v1/layout"
	"github.com/callwatch/backend/internal/v1/timeline"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ErrSurfaceAllocation is returned when the computed layout yields a
// non-positive surface size.
var ErrSurfaceAllocation = errors.New("render: surface allocation failed")

const (
	voiceStrokeWidth  = 2.0
	streamStrokeWidth = 5.0
	endCapGrayLevel   = 0.2 // 0 = black, 1 = white
)

var (
	tickLineColor = color.RGBA{R: 210, G: 210, B: 210, A: 255}
	tickTextColor = color.RGBA{R: 60, G: 60, B: 60, A: 255}
	endCapColor   = grayColor(endCapGrayLevel)
)

func grayColor(level float64) color.RGBA {
	v := uint8(math.Round(level * 255))
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// Render rasterizes a Timeline into a PNG-encoded image, following the
// layout derived from cfg and the timeline's entry count.
func Render(cfg layout.Config, tl timeline.Timeline) ([]byte, error) {
	l := layout.Calculate(cfg, len(tl.Entries))
	w, h := int(math.Ceil(l.TotalWidth)), int(math.Ceil(l.TotalHeight))
	if w <= 0 || h <= 0 {
		return nil, ErrSurfaceAllocation
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawTicks(img, l, tl)

	for i, e := range tl.Entries {
		drawAvatar(img, l.HeadlineBB(i), e.Bitmap)
		bar := l.TimelineBBForEntry(i)

		for _, sec := range e.VoiceSections {
			fillVoiceSection(img, bar, sec, e.ActiveColor, e.InactiveColor)
		}
		for _, sec := range e.VoiceSections {
			strokeSection(img, bar, sec, e.ActiveColor, voiceStrokeWidth)
		}
		for _, sec := range e.StreamingSections {
			strokeSection(img, bar, sec, e.StreamingColor, streamStrokeWidth)
		}
	}

	drawEndCaps(img, l.FullTimelineBB())

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionRect(bar layout.Rect, sec timeline.Section) layout.Rect {
	start := clip01(sec.StartRatio)
	end := clip01(sec.EndRatio)
	return layout.Rect{
		X: bar.X + start*bar.W,
		Y: bar.Y,
		W: (end - start) * bar.W,
		H: bar.H,
	}
}

func clip01(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func fillVoiceSection(img *image.RGBA, bar layout.Rect, sec timeline.Section, active, inactive color.RGBA) {
	r := sectionRect(bar, sec)
	x0, y0, x1, y1 := rectBounds(r, img.Bounds())
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			c := shadeAt(sec.Style, active, inactive, x-x0, y-y0)
			img.SetRGBA(x, y, c)
		}
	}
}

func rectBounds(r layout.Rect, clip image.Rectangle) (x0, y0, x1, y1 int) {
	x0 = int(math.Round(r.X))
	y0 = int(math.Round(r.Y))
	x1 = int(math.Round(r.X + r.W))
	y1 = int(math.Round(r.Y + r.H))
	if x0 < clip.Min.X {
		x0 = clip.Min.X
	}
	if y0 < clip.Min.Y {
		y0 = clip.Min.Y
	}
	if x1 > clip.Max.X {
		x1 = clip.Max.X
	}
	if y1 > clip.Max.Y {
		y1 = clip.Max.Y
	}
	return
}

// strokeSection draws a round-capped stroke of the given width around
// sec's rectangle: a rounded-corner ring, corner radius == width/2, so
// the outline reads as a capsule rather than a sharp-cornered box.
func strokeSection(img *image.RGBA, bar layout.Rect, sec timeline.Section, col color.RGBA, width float64) {
	r := sectionRect(bar, sec)
	if r.W <= 0 || r.H <= 0 {
		return
	}
	radius := width / 2
	x0, y0, x1, y1 := rectBounds(r, img.Bounds())
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			px, py := float64(x)+0.5, float64(y)+0.5
			if insideRoundedRect(r, radius, px, py) && !insideRoundedRect(inset(r, width), 0, px, py) {
				img.SetRGBA(x, y, col)
			}
		}
	}
}

func inset(r layout.Rect, amount float64) layout.Rect {
	return layout.Rect{
		X: r.X + amount,
		Y: r.Y + amount,
		W: r.W - 2*amount,
		H: r.H - 2*amount,
	}
}

// insideRoundedRect reports whether (px, py) lies within rect, a
// rectangle whose corners are rounded to radius.
func insideRoundedRect(rect layout.Rect, radius, px, py float64) bool {
	if px < rect.X || px > rect.X+rect.W || py < rect.Y || py > rect.Y+rect.H {
		return false
	}
	if radius <= 0 {
		return true
	}
	coreX := clampF(px, rect.X+radius, rect.X+rect.W-radius)
	coreY := clampF(py, rect.Y+radius, rect.Y+rect.H-radius)
	dx, dy := px-coreX, py-coreY
	return dx*dx+dy*dy <= radius*radius
}

func clampF(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// circleMask is an alpha mask selecting the disc inscribed in its
// bounds, used to clip avatar bitmaps to a circle.
type circleMask struct {
	rect   image.Rectangle
	cx, cy float64
	r      float64
}

func (m circleMask) ColorModel() color.Model { return color.AlphaModel }
func (m circleMask) Bounds() image.Rectangle { return m.rect }
func (m circleMask) At(x, y int) color.Color {
	dx := float64(x) + 0.5 - m.cx
	dy := float64(y) + 0.5 - m.cy
	if dx*dx+dy*dy <= m.r*m.r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{A: 0}
}

func drawAvatar(img *image.RGBA, bb layout.Rect, bitmap *image.RGBA) {
	if bitmap == nil {
		return
	}
	dstRect := image.Rect(int(math.Round(bb.X)), int(math.Round(bb.Y)), int(math.Round(bb.X+bb.W)), int(math.Round(bb.Y+bb.H)))
	if dstRect.Dx() <= 0 || dstRect.Dy() <= 0 {
		return
	}

	scaled := image.NewRGBA(dstRect)
	draw.CatmullRom.Scale(scaled, dstRect, bitmap, bitmap.Bounds(), draw.Src, nil)

	mask := circleMask{
		rect: dstRect,
		cx:   bb.X + bb.W/2,
		cy:   bb.Y + bb.H/2,
		r:    math.Min(bb.W, bb.H) / 2,
	}
	draw.DrawMask(img, dstRect, scaled, dstRect.Min, mask, dstRect.Min, draw.Over)
}

func drawTicks(img *image.RGBA, l layout.Layout, tl timeline.Timeline) {
	bb := l.FullTimelineBB()
	total := tl.TerminatedAt.Sub(tl.CreatedAt)
	if total <= 0 {
		return
	}
	for _, tick := range tl.Ticks {
		r := clip01(float64(tick.At.Sub(tl.CreatedAt)) / float64(total))
		x := bb.X + r*bb.W
		drawVerticalLine(img, x, bb.Y, bb.Y+bb.H, tickLineColor)
		drawLabel(img, tick.Label, x, bb.Y-4)
	}
}

func drawVerticalLine(img *image.RGBA, x, yTop, yBottom float64, col color.RGBA) {
	xi := int(math.Round(x))
	y0, y1 := int(math.Round(yTop)), int(math.Round(yBottom))
	for y := y0; y < y1; y++ {
		if image.Pt(xi, y).In(img.Bounds()) {
			img.SetRGBA(xi, y, col)
		}
	}
}

// drawLabel draws tick text above (x, yBaseline), one line per "\n"
// segment, bottom line closest to the axis.
func drawLabel(img *image.RGBA, label string, x, yBaseline float64) {
	lines := strings.Split(label, "\n")
	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil()

	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		lineIdxFromBottom := len(lines) - 1 - i
		baseline := int(math.Round(yBaseline)) - lineIdxFromBottom*lineHeight
		w := font.MeasureString(face, line).Ceil()
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(tickTextColor),
			Face: face,
			Dot:  fixed.P(int(math.Round(x))-w/2, baseline),
		}
		d.DrawString(line)
	}
}

func drawEndCaps(img *image.RGBA, bb layout.Rect) {
	drawVerticalLine(img, bb.X, bb.Y, bb.Y+bb.H, endCapColor)
	drawVerticalLine(img, bb.X+bb.W, bb.Y, bb.Y+bb.H, endCapColor)
}
