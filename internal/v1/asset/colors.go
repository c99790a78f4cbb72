package asset

import (
	"image"
	"image/color"
	"math"
	"math/rand"
)

// labPoint is a pixel's CIE L*a*b* coordinates paired back to the sRGB
// color it came from, so a winning cluster can be reported in RGB.
type labPoint struct {
	L, A, B float64
	rgb     color.RGBA
}

// srgbToLab converts one sRGB pixel (0-255 per channel, already
// alpha-composited against an opaque background) to CIE L*a*b*, using
// the standard D65 sRGB -> XYZ -> Lab pipeline.
func srgbToLab(c color.RGBA) labPoint {
	toLinear := func(v uint8) float64 {
		f := float64(v) / 255.0
		if f <= 0.04045 {
			return f / 12.92
		}
		return math.Pow((f+0.055)/1.055, 2.4)
	}
	r := toLinear(c.R)
	g := toLinear(c.G)
	b := toLinear(c.B)

	// sRGB D65 -> XYZ
	x := r*0.4124564 + g*0.3575761 + b*0.1804375
	y := r*0.2126729 + g*0.7151522 + b*0.0721750
	z := r*0.0193339 + g*0.1191920 + b*0.9503041

	// Normalize by the D65 reference white.
	const xn, yn, zn = 0.95047, 1.0, 1.08883
	fx := labF(x / xn)
	fy := labF(y / yn)
	fz := labF(z / zn)

	return labPoint{
		L:   116*fy - 16,
		A:   500 * (fx - fy),
		B:   200 * (fy - fz),
		rgb: c,
	}
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}

const (
	kmeansK          = 3
	kmeansRuns       = 5
	kmeansIterations = 30
	kmeansTolerance  = 1.0
)

// kmeansRun performs one Lloyd's-algorithm run over points with a fixed
// k, seeded by rng, and returns the resulting centroids, each point's
// cluster assignment, and the run's inertia (sum of squared distances
// to assigned centroid).
func kmeansRun(points []labPoint, k int, rng *rand.Rand) ([]labPoint, []int, float64) {
	n := len(points)
	centroids := make([]labPoint, k)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		centroids[i] = points[perm[i%n]]
	}

	assignments := make([]int, n)
	for iter := 0; iter < kmeansIterations; iter++ {
		moved := 0.0
		for i, p := range points {
			best, bestDist := 0, math.MaxFloat64
			for c, centroid := range centroids {
				d := labDistSq(p, centroid)
				if d < bestDist {
					bestDist = d
					best = c
				}
			}
			assignments[i] = best
		}

		sums := make([]labPoint, k)
		counts := make([]int, k)
		for i, p := range points {
			c := assignments[i]
			sums[c].L += p.L
			sums[c].A += p.A
			sums[c].B += p.B
			counts[c]++
		}

		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			newCentroid := labPoint{
				L: sums[c].L / float64(counts[c]),
				A: sums[c].A / float64(counts[c]),
				B: sums[c].B / float64(counts[c]),
			}
			moved += math.Sqrt(labDistSq(newCentroid, centroids[c]))
			centroids[c] = newCentroid
		}

		if moved < kmeansTolerance {
			break
		}
	}

	inertia := 0.0
	for i, p := range points {
		inertia += labDistSq(p, centroids[assignments[i]])
	}
	return centroids, assignments, inertia
}

func labDistSq(a, b labPoint) float64 {
	dl, da, db := a.L-b.L, a.A-b.A, a.B-b.B
	return dl*dl + da*da + db*db
}

// dominantColor extracts the active color from an RGBA bitmap: convert
// every opaque-enough pixel to Lab, drop near-black/near-white pixels
// (L outside (20, 90)), run k-means five times and keep the
// lowest-inertia run, then report the centroid of the largest cluster
// mapped back to its nearest source pixel's RGB. Falls back to opaque
// black if no pixel survives the filter.
func dominantColor(img *image.RGBA) color.RGBA {
	bounds := img.Bounds()
	points := make([]labPoint, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.A == 0 {
				continue
			}
			lab := srgbToLab(c)
			if lab.L <= 20 || lab.L >= 90 {
				continue
			}
			points = append(points, lab)
		}
	}
	if len(points) == 0 {
		return color.RGBA{A: 255}
	}

	rng := rand.New(rand.NewSource(1))
	var bestCentroids []labPoint
	var bestAssignments []int
	bestInertia := math.MaxFloat64
	for run := 0; run < kmeansRuns; run++ {
		centroids, assignments, inertia := kmeansRun(points, kmeansK, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestCentroids = centroids
			bestAssignments = assignments
		}
	}

	counts := make([]int, len(bestCentroids))
	for _, a := range bestAssignments {
		counts[a]++
	}
	dominant := 0
	for i, n := range counts {
		if n > counts[dominant] {
			dominant = i
		}
	}

	// Report the nearest actual pixel color to the winning centroid so
	// the active color is always a color that appears in the avatar.
	best, bestDist := points[0], math.MaxFloat64
	for i, p := range points {
		if bestAssignments[i] != dominant {
			continue
		}
		d := labDistSq(p, bestCentroids[dominant])
		if d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best.rgb
}

// inactiveColor returns active with alpha scaled to 35%.
func inactiveColor(active color.RGBA) color.RGBA {
	c := active
	c.A = uint8(float64(active.A) * 0.35)
	return c
}

// streamingColor scales active's Lab lightness to 40% and converts the
// result back to sRGB. Channels that fall outside the sRGB gamut are
// clamped to [0, 255] with no gamut mapping, so for saturated colors the
// returned color's lightness and hue differ from the scaled Lab value
// (e.g. (200,60,60) comes back with L* near 22.5 rather than 18.7).
func streamingColor(active color.RGBA) color.RGBA {
	lab := srgbToLab(active)
	lab.L *= 0.4
	return labToSRGB(lab, active.A)
}

func labToSRGB(lab labPoint, alpha uint8) color.RGBA {
	fy := (lab.L + 16) / 116
	fx := fy + lab.A/500
	fz := fy - lab.B/200

	invF := func(t float64) float64 {
		const delta = 6.0 / 29.0
		if t > delta {
			return t * t * t
		}
		return 3 * delta * delta * (t - 4.0/29.0)
	}

	const xn, yn, zn = 0.95047, 1.0, 1.08883
	x := xn * invF(fx)
	y := yn * invF(fy)
	z := zn * invF(fz)

	r := x*3.2404542 + y*-1.5371385 + z*-0.4985314
	g := x*-0.9692660 + y*1.8760108 + z*0.0415560
	b := x*0.0556434 + y*-0.2040259 + z*1.0572252

	toGamma := func(v float64) uint8 {
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return 255
		}
		if v <= 0.0031308 {
			v *= 12.92
		} else {
			v = 1.055*math.Pow(v, 1/2.4) - 0.055
		}
		return uint8(math.Round(v * 255))
	}

	return color.RGBA{R: toGamma(r), G: toGamma(g), B: toGamma(b), A: alpha}
}
