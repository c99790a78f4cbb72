package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/callwatch/backend/internal/v1/layout"
	"github.com/callwatch/backend/internal/v1/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidBitmap(c color.RGBA, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestRender_ProducesDecodablePNGAtLayoutSize(t *testing.T) {
	cfg := layout.DefaultConfig()
	created := time.Unix(0, 0)
	tl := timeline.Timeline{
		CreatedAt:    created,
		TerminatedAt: created.Add(5 * time.Minute),
		TickInterval: time.Minute,
		Ticks: []timeline.Tick{
			{At: created.Add(time.Minute), Label: "1:00"},
			{At: created.Add(2 * time.Minute), Label: "2:00"},
		},
		Entries: []timeline.Entry{
			{
				UserID:         "1",
				Name:           "Alice",
				Bitmap:         solidBitmap(color.RGBA{R: 200, G: 50, B: 50, A: 255}, 64),
				ActiveColor:    color.RGBA{R: 200, G: 50, B: 50, A: 255},
				InactiveColor:  color.RGBA{R: 200, G: 50, B: 50, A: 90},
				StreamingColor: color.RGBA{R: 80, G: 20, B: 20, A: 255},
				VoiceSections: []timeline.Section{
					{StartRatio: 0, EndRatio: 0.5, Style: timeline.Active},
					{StartRatio: 0.5, EndRatio: 1, Style: timeline.Muted},
				},
				StreamingSections: []timeline.Section{
					{StartRatio: 0, EndRatio: 0.3},
				},
			},
		},
	}

	png, err := Render(cfg, tl)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	l := layout.Calculate(cfg, 1)
	img, err := decodePNG(png)
	require.NoError(t, err)
	assert.Equal(t, int(l.TotalWidth), img.Bounds().Dx())
	assert.Equal(t, int(l.TotalHeight), img.Bounds().Dy())
}

func TestRender_NoEntriesStillProducesSurface(t *testing.T) {
	cfg := layout.DefaultConfig()
	created := time.Unix(0, 0)
	tl := timeline.Timeline{CreatedAt: created, TerminatedAt: created.Add(time.Minute)}
	png, err := Render(cfg, tl)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
}

func TestShadeAt_ActiveIsSolid(t *testing.T) {
	active := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	inactive := color.RGBA{R: 1, G: 2, B: 3, A: 90}
	assert.Equal(t, active, shadeAt(timeline.Active, active, inactive, 0, 0))
}

func TestShadeAt_DeafenedIsSolidInactive(t *testing.T) {
	active := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	inactive := color.RGBA{R: 1, G: 2, B: 3, A: 90}
	assert.Equal(t, inactive, shadeAt(timeline.Deafened, active, inactive, 5, 5))
}

func TestHatchPixel_TilesSeamlessly(t *testing.T) {
	active := color.RGBA{R: 255, G: 0, B: 0, A: 255}
	inactive := color.RGBA{R: 0, G: 0, B: 255, A: 255}
	// A pixel and its neighbor one tile over must shade identically.
	a := hatchPixel(active, inactive, 3, 4)
	b := hatchPixel(active, inactive, 13, 4)
	assert.Equal(t, a, b)
}

func TestInsideRoundedRect_CornersAreRounded(t *testing.T) {
	r := layout.Rect{X: 0, Y: 0, W: 20, H: 20}
	// The exact corner point is outside a rounded rect with radius 5.
	assert.False(t, insideRoundedRect(r, 5, 0.1, 0.1))
	// The center is always inside.
	assert.True(t, insideRoundedRect(r, 5, 10, 10))
}

func decodePNG(b []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(b))
}
