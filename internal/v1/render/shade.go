package render

import (
	"image/color"

	"github.com/callwatch/backend/internal/v1/timeline"
)

const hatchTileSize = 10

// hatchStrokeWidth is the width, in pixels, of each diagonal stroke in
// the Muted hatching tile.
const hatchStrokeWidth = 3

// shadeAt returns the color to paint at local tile coordinates (x, y)
// (the Muted tile reduces x, y modulo the tile size itself) for one voice
// section's fill style.
func shadeAt(style timeline.FillStyle, active, inactive color.RGBA, x, y int) color.RGBA {
	switch style {
	case timeline.Active:
		return active
	case timeline.Deafened:
		return inactive
	case timeline.Muted:
		return hatchPixel(active, inactive, x, y)
	default:
		return active
	}
}

// hatchPixel renders the Muted tile: an inactive-colored background
// with three 3px-wide diagonal strokes in the active color at alpha
// 0.8 — the main cross-diagonal plus two wrap-around half-diagonals so
// the tile repeats seamlessly across the section's width.
func hatchPixel(active, inactive color.RGBA, x, y int) color.RGBA {
	x = ((x % hatchTileSize) + hatchTileSize) % hatchTileSize
	y = ((y % hatchTileSize) + hatchTileSize) % hatchTileSize

	onStroke := func(diag int) bool {
		d := x - y - diag
		return d >= -hatchStrokeWidth/2 && d <= hatchStrokeWidth/2
	}

	// Main diagonal plus its two wrap-arounds (offset by +/- tile size)
	// so a stroke exiting one edge re-enters at the opposite edge.
	if onStroke(0) || onStroke(hatchTileSize) || onStroke(-hatchTileSize) {
		return blendAlpha(inactive, active, 0.8)
	}
	return inactive
}

// blendAlpha composites src over dst at the given coverage alpha
// (0..1), keeping dst's own alpha as the result's base opacity.
func blendAlpha(dst, src color.RGBA, alpha float64) color.RGBA {
	blend := func(d, s uint8) uint8 {
		return uint8(float64(d)*(1-alpha) + float64(s)*alpha)
	}
	return color.RGBA{
		R: blend(dst.R, src.R),
		G: blend(dst.G, src.G),
		B: blend(dst.B, src.B),
		A: dst.A,
	}
}
