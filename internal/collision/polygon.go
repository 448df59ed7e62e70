package collision

import (
	"math"

	"glade-runner/server/internal/geometry"
)

func aabbAABB(a, b body) (geometry.Vec2, bool) {
	ca, cb := a.center(), b.center()
	delta := cb.Sub(ca)

	overlapX := (a.shape.Width+b.shape.Width)/2 - math.Abs(delta.X)
	overlapY := (a.shape.Height+b.shape.Height)/2 - math.Abs(delta.Y)
	if overlapX <= 0 || overlapY <= 0 {
		return geometry.Vec2{}, false
	}

	if overlapX <= overlapY {
		return geometry.Vec2{X: sign(delta.X) * overlapX}, true
	}
	return geometry.Vec2{Y: sign(delta.Y) * overlapY}, true
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func polygonPolygon(a, b body) (geometry.Vec2, bool) {
	return SAT(a.shape.Vertices(a.pos), b.shape.Vertices(b.pos))
}

// EdgeNormals returns the unit normals of a closed polygon's edges, skipping
// degenerate edges.
func EdgeNormals(vertices []geometry.Vec2) []geometry.Vec2 {
	normals := make([]geometry.Vec2, 0, len(vertices))
	for i := range vertices {
		next := vertices[(i+1)%len(vertices)]
		normal := next.Sub(vertices[i]).Perp().Normalize()
		if normal.IsZero() {
			continue
		}
		normals = append(normals, normal)
	}
	return normals
}

func project(vertices []geometry.Vec2, axis geometry.Vec2) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range vertices {
		d := v.Dot(axis)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

func centroid(vertices []geometry.Vec2) geometry.Vec2 {
	var sum geometry.Vec2
	for _, v := range vertices {
		sum = sum.Add(v)
	}
	if len(vertices) == 0 {
		return sum
	}
	return sum.Scale(1 / float64(len(vertices)))
}

// SAT runs the separating axis test over the edge normals of two convex
// polygons. The MTV lies on the axis of minimum overlap and points from a's
// centroid towards b's.
func SAT(a, b []geometry.Vec2) (geometry.Vec2, bool) {
	if len(a) < 3 || len(b) < 3 {
		return geometry.Vec2{}, false
	}

	axes := append(EdgeNormals(a), EdgeNormals(b)...)
	if len(axes) == 0 {
		return geometry.Vec2{}, false
	}

	best := math.Inf(1)
	var bestAxis geometry.Vec2
	for _, axis := range axes {
		minA, maxA := project(a, axis)
		minB, maxB := project(b, axis)
		overlap := math.Min(maxA, maxB) - math.Max(minA, minB)
		if overlap <= 0 {
			return geometry.Vec2{}, false
		}
		if overlap < best {
			best = overlap
			bestAxis = axis
		}
	}

	if bestAxis.Dot(centroid(b).Sub(centroid(a))) < 0 {
		bestAxis = bestAxis.Neg()
	}
	return bestAxis.Scale(best), true
}
