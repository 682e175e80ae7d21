package landmarks

import (
	"fmt"
	"math"
)

// Triangle references three landmark indices.
type Triangle [3]int

type edge struct{ a, b int }

func normEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// Triangulate computes a Delaunay triangulation of the point set using the
// Bowyer-Watson incremental algorithm. Indices in the result refer to the
// input slice. Duplicate points make the triangulation unstable; callers
// should pass distinct landmarks.
func Triangulate(points []Point) ([]Triangle, error) {
	n := len(points)
	if n < 3 {
		return nil, fmt.Errorf("triangulation needs at least 3 points, got %d", n)
	}

	// Working copy with a super-triangle enclosing all points appended.
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	dx, dy := maxX-minX, maxY-minY
	d := math.Max(dx, dy)
	if d == 0 {
		return nil, fmt.Errorf("all %d points are coincident", n)
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	pts := make([]Point, n, n+3)
	copy(pts, points)
	pts = append(pts,
		Point{X: midX - 20*d, Y: midY - d},
		Point{X: midX, Y: midY + 20*d},
		Point{X: midX + 20*d, Y: midY - d},
	)
	super := [3]int{n, n + 1, n + 2}

	tris := []Triangle{{super[0], super[1], super[2]}}

	for i := 0; i < n; i++ {
		p := pts[i]

		// Triangles whose circumcircle contains p are invalidated.
		var bad []Triangle
		var keep []Triangle
		for _, t := range tris {
			if inCircumcircle(pts[t[0]], pts[t[1]], pts[t[2]], p) {
				bad = append(bad, t)
			} else {
				keep = append(keep, t)
			}
		}

		// The boundary of the invalidated region is every edge that is not
		// shared between two bad triangles.
		edgeCount := make(map[edge]int)
		for _, t := range bad {
			edgeCount[normEdge(t[0], t[1])]++
			edgeCount[normEdge(t[1], t[2])]++
			edgeCount[normEdge(t[2], t[0])]++
		}

		tris = keep
		for e, count := range edgeCount {
			if count == 1 {
				tris = append(tris, Triangle{e.a, e.b, i})
			}
		}
	}

	// Drop triangles that touch the super-triangle vertices.
	out := make([]Triangle, 0, len(tris))
	for _, t := range tris {
		if t[0] >= n || t[1] >= n || t[2] >= n {
			continue
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("triangulation of %d points is degenerate", n)
	}
	return out, nil
}

// inCircumcircle reports whether p lies strictly inside the circumcircle of
// triangle (a, b, c).
func inCircumcircle(a, b, c, p Point) bool {
	ax, ay := a.X-p.X, a.Y-p.Y
	bx, by := b.X-p.X, b.Y-p.Y
	cx, cy := c.X-p.X, c.Y-p.Y

	det := (ax*ax+ay*ay)*(bx*cy-cx*by) -
		(bx*bx+by*by)*(ax*cy-cx*ay) +
		(cx*cx+cy*cy)*(ax*by-bx*ay)

	// Orientation flips the sign of the determinant test.
	if orient(a, b, c) > 0 {
		return det > 0
	}
	return det < 0
}

func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (c.X-a.X)*(b.Y-a.Y)
}
