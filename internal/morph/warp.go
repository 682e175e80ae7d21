package morph

import (
	"image"
	"math"

	"github.com/xaimorph/morphd/internal/landmarks"
)

// warpImage maps src toward the target landmark configuration, triangle by
// triangle. Pixels are filled by inverse mapping: for every destination pixel
// inside a target triangle, its barycentric coordinates select the matching
// source location, sampled bilinearly. Regions outside all triangles keep the
// source pixel, which keeps the frame border stable together with the
// boundary anchors.
func warpImage(src *image.RGBA, from, to []landmarks.Point, tris []landmarks.Triangle) *image.RGBA {
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.Pix)

	for _, t := range tris {
		sa, sb, sc := from[t[0]], from[t[1]], from[t[2]]
		da, db, dc := to[t[0]], to[t[1]], to[t[2]]
		warpTriangle(src, out, sa, sb, sc, da, db, dc)
	}
	return out
}

func warpTriangle(src, dst *image.RGBA, sa, sb, sc, da, db, dc landmarks.Point) {
	denom := (db.Y-dc.Y)*(da.X-dc.X) + (dc.X-db.X)*(da.Y-dc.Y)
	if math.Abs(denom) < 1e-9 {
		return // degenerate target triangle
	}

	b := dst.Bounds()
	minX := clampInt(int(math.Floor(min3(da.X, db.X, dc.X))), b.Min.X, b.Max.X-1)
	maxX := clampInt(int(math.Ceil(max3(da.X, db.X, dc.X))), b.Min.X, b.Max.X-1)
	minY := clampInt(int(math.Floor(min3(da.Y, db.Y, dc.Y))), b.Min.Y, b.Max.Y-1)
	maxY := clampInt(int(math.Ceil(max3(da.Y, db.Y, dc.Y))), b.Min.Y, b.Max.Y-1)

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			px, py := float64(x), float64(y)
			u := ((db.Y-dc.Y)*(px-dc.X) + (dc.X-db.X)*(py-dc.Y)) / denom
			v := ((dc.Y-da.Y)*(px-dc.X) + (da.X-dc.X)*(py-dc.Y)) / denom
			w := 1 - u - v
			if u < -1e-6 || v < -1e-6 || w < -1e-6 {
				continue
			}

			sx := u*sa.X + v*sb.X + w*sc.X
			sy := u*sa.Y + v*sb.Y + w*sc.Y
			r, g, bl, al := sampleBilinear(src, sx, sy)

			off := dst.PixOffset(x, y)
			dst.Pix[off+0] = r
			dst.Pix[off+1] = g
			dst.Pix[off+2] = bl
			dst.Pix[off+3] = al
		}
	}
}

// sampleBilinear reads src at a fractional coordinate with edge clamping.
func sampleBilinear(src *image.RGBA, x, y float64) (r, g, b, a uint8) {
	bnd := src.Bounds()
	maxX := float64(bnd.Max.X - 1)
	maxY := float64(bnd.Max.Y - 1)
	x = math.Min(math.Max(x, float64(bnd.Min.X)), maxX)
	y = math.Min(math.Max(y, float64(bnd.Min.Y)), maxY)

	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > bnd.Max.X-1 {
		x1 = bnd.Max.X - 1
	}
	if y1 > bnd.Max.Y-1 {
		y1 = bnd.Max.Y - 1
	}
	fx, fy := x-float64(x0), y-float64(y0)

	o00 := src.PixOffset(x0, y0)
	o10 := src.PixOffset(x1, y0)
	o01 := src.PixOffset(x0, y1)
	o11 := src.PixOffset(x1, y1)

	lerp2 := func(c int) uint8 {
		top := (1-fx)*float64(src.Pix[o00+c]) + fx*float64(src.Pix[o10+c])
		bot := (1-fx)*float64(src.Pix[o01+c]) + fx*float64(src.Pix[o11+c])
		return uint8((1-fy)*top + fy*bot + 0.5)
	}
	return lerp2(0), lerp2(1), lerp2(2), lerp2(3)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }
