package asset

import (
	"image"
	"image/color"
	"math"
)

// lanczos3 evaluates the Lanczos kernel with a=3 at x.
func lanczos3(x float64) float64 {
	const a = 3.0
	if x == 0 {
		return 1
	}
	if x < -a || x > a {
		return 0
	}
	piX := math.Pi * x
	return a * math.Sin(piX) * math.Sin(piX/a) / (piX * piX)
}

// resizeLanczos3 resamples src into a size x size RGBA bitmap using a
// separable Lanczos3 filter, the resampling kernel named in §4.5.
func resizeLanczos3(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	if srcW == 0 || srcH == 0 {
		return dst
	}

	rgba := toRGBA(src)

	// Resample horizontally into an intermediate buffer, then vertically.
	type pixel struct{ r, g, b, a float64 }
	tmp := make([]pixel, size*srcH)
	scaleX := float64(srcW) / float64(size)
	for dx := 0; dx < size; dx++ {
		center := (float64(dx) + 0.5) * scaleX
		lo := int(math.Floor(center - 3*math.Max(scaleX, 1)))
		hi := int(math.Ceil(center + 3*math.Max(scaleX, 1)))
		for y := 0; y < srcH; y++ {
			var r, g, b, a, wsum float64
			for sx := lo; sx <= hi; sx++ {
				if sx < 0 || sx >= srcW {
					continue
				}
				w := lanczos3((float64(sx) + 0.5 - center) / math.Max(scaleX, 1))
				if w == 0 {
					continue
				}
				c := rgba.RGBAAt(bounds.Min.X+sx, bounds.Min.Y+y)
				r += w * float64(c.R)
				g += w * float64(c.G)
				b += w * float64(c.B)
				a += w * float64(c.A)
				wsum += w
			}
			if wsum != 0 {
				r, g, b, a = r/wsum, g/wsum, b/wsum, a/wsum
			}
			tmp[y*size+dx] = pixel{r, g, b, a}
		}
	}

	scaleY := float64(srcH) / float64(size)
	for dy := 0; dy < size; dy++ {
		center := (float64(dy) + 0.5) * scaleY
		lo := int(math.Floor(center - 3*math.Max(scaleY, 1)))
		hi := int(math.Ceil(center + 3*math.Max(scaleY, 1)))
		for dx := 0; dx < size; dx++ {
			var r, g, b, a, wsum float64
			for sy := lo; sy <= hi; sy++ {
				if sy < 0 || sy >= srcH {
					continue
				}
				w := lanczos3((float64(sy) + 0.5 - center) / math.Max(scaleY, 1))
				if w == 0 {
					continue
				}
				p := tmp[sy*size+dx]
				r += w * p.r
				g += w * p.g
				b += w * p.b
				a += w * p.a
				wsum += w
			}
			if wsum != 0 {
				r, g, b, a = r/wsum, g/wsum, b/wsum, a/wsum
			}
			dst.SetRGBA(dx, dy, clampRGBA(r, g, b, a))
		}
	}
	return dst
}

func clampRGBA(r, g, b, a float64) color.RGBA {
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(math.Round(v))
	}
	return color.RGBA{R: clamp(r), G: clamp(g), B: clamp(b), A: clamp(a)}
}

func toRGBA(src image.Image) *image.RGBA {
	if r, ok := src.(*image.RGBA); ok {
		return r
	}
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
	return dst
}
