package collision

import "glade-runner/server/internal/geometry"

// capsuleVs resolves capsule a against any shape b. Round shapes and other
// capsules reduce to closest points and a circle test. Boxes are approximated
// by sampling circles along the capsule segment and returning the first hit.
func capsuleVs(a, b body) (geometry.Vec2, bool) {
	p1, p2, ok := a.shape.WorldSegment(a.pos)
	if !ok {
		return geometry.Vec2{}, false
	}
	ra := a.shape.Radius

	switch {
	case isRound(b.shape.Kind):
		cb := b.center()
		closest := geometry.ClosestPointOnSegment(cb, p1, p2)
		return circleCircle(closest, ra, cb, b.radius())
	case b.shape.Kind == geometry.KindCapsule:
		q1, q2, ok := b.shape.WorldSegment(b.pos)
		if !ok {
			return geometry.Vec2{}, false
		}
		pa, pb := geometry.ClosestPointsSegments(p1, p2, q1, q2)
		return circleCircle(pa, ra, pb, b.shape.Radius)
	case isBox(b.shape.Kind):
		n := geometry.SampleCount(geometry.Distance(p1, p2), CapsuleSampleSpacing)
		sample := geometry.Circle(ra)
		for _, point := range geometry.SampleSegment(p1, p2, n) {
			if mtv, hit := resolve(body{shape: &sample, pos: point}, b); hit {
				return mtv, true
			}
		}
	}
	return geometry.Vec2{}, false
}
