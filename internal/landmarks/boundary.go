package landmarks

// WithBoundary appends the four corners and edge midpoints of a w x h frame
// to a landmark set. Warping only the detected region leaves the frame border
// unconstrained; the anchors pin it in place.
func WithBoundary(points []Point, w, h int) []Point {
	fw, fh := float64(w), float64(h)
	extra := []Point{
		{0, 0}, {fw / 2, 0}, {fw - 1, 0},
		{0, fh / 2}, {fw - 1, fh / 2},
		{0, fh - 1}, {fw / 2, fh - 1}, {fw - 1, fh - 1},
	}
	out := make([]Point, 0, len(points)+len(extra))
	out = append(out, points...)
	out = append(out, extra...)
	return out
}

// Average returns the pointwise midpoint of two equal-length landmark sets.
// The triangulation for a morph is computed once over this averaged set and
// reused for every frame.
func Average(a, b []Point) []Point {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		out[i] = Point{X: (a[i].X + b[i].X) / 2, Y: (a[i].Y + b[i].Y) / 2}
	}
	return out
}

// Lerp interpolates between two equal-length landmark sets at fraction t.
func Lerp(a, b []Point, t float64) []Point {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]Point, n)
	for i := 0; i < n; i++ {
		out[i] = Point{
			X: (1-t)*a[i].X + t*b[i].X,
			Y: (1-t)*a[i].Y + t*b[i].Y,
		}
	}
	return out
}
