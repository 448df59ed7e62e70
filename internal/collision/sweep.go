package collision

import (
	"math"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// SweepOverlaps reports whether a circle of the given radius moving from
// `from` to `to` touches target at any point of the path. Unlike the sampled
// capsule resolver this is exact, so a thin wall cannot be skipped between
// samples.
func SweepOverlaps(from, to geometry.Vec2, radius float64, target *geometry.Shape, tt *state.Transform) bool {
	if target == nil || tt == nil || target.Validate() != nil || radius < 0 {
		return false
	}
	center := target.Center(tt.Position)

	switch target.Kind {
	case geometry.KindCircle, geometry.KindPoint:
		reach := radius
		if target.Kind == geometry.KindCircle {
			reach += target.Radius
		}
		return geometry.DistancePointSegment(center, from, to) < reach
	case geometry.KindCapsule:
		a, b, ok := target.WorldSegment(tt.Position)
		if !ok {
			return false
		}
		p, q := geometry.ClosestPointsSegments(from, to, a, b)
		return geometry.Distance(p, q) < radius+target.Radius
	case geometry.KindAABB, geometry.KindOBB:
		vertices := target.Vertices(tt.Position)
		if SegmentIntersectsPolygon(from, to, vertices) {
			return true
		}
		return SegmentPolygonDistance(from, to, vertices) < radius
	}
	return false
}

// SegmentIntersectsPolygon runs SAT between segment ab and a convex polygon.
// Touching counts as intersecting.
func SegmentIntersectsPolygon(a, b geometry.Vec2, vertices []geometry.Vec2) bool {
	if len(vertices) < 3 {
		return false
	}
	segment := []geometry.Vec2{a, b}
	axes := EdgeNormals(vertices)
	if normal := b.Sub(a).Perp().Normalize(); !normal.IsZero() {
		axes = append(axes, normal)
	}
	for _, axis := range axes {
		minS, maxS := project(segment, axis)
		minP, maxP := project(vertices, axis)
		if maxS < minP || maxP < minS {
			return false
		}
	}
	return true
}

// SegmentPolygonDistance returns the shortest distance between segment ab and
// the outline of a convex polygon that it does not intersect.
func SegmentPolygonDistance(a, b geometry.Vec2, vertices []geometry.Vec2) float64 {
	best := math.Inf(1)
	for i, v := range vertices {
		next := vertices[(i+1)%len(vertices)]
		best = math.Min(best, geometry.DistancePointSegment(a, v, next))
		best = math.Min(best, geometry.DistancePointSegment(b, v, next))
		best = math.Min(best, geometry.DistancePointSegment(v, a, b))
	}
	return best
}
