package geometry

import "math"

// ClosestPointOnSegment projects p onto segment ab.
func ClosestPointOnSegment(p, a, b Vec2) Vec2 {
	ab := b.Sub(a)
	lenSq := ab.LenSq()
	if lenSq == 0 {
		return a
	}
	t := Clamp(p.Sub(a).Dot(ab)/lenSq, 0, 1)
	return a.Add(ab.Scale(t))
}

// DistancePointSegment returns the distance from p to segment ab.
func DistancePointSegment(p, a, b Vec2) float64 {
	return Distance(p, ClosestPointOnSegment(p, a, b))
}

// ClosestPointsSegments returns the closest pair of points between segments
// p1q1 and p2q2 (Ericson, Real-Time Collision Detection 5.1.9).
func ClosestPointsSegments(p1, q1, p2, q2 Vec2) (Vec2, Vec2) {
	const eps = 1e-12
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.LenSq()
	e := d2.LenSq()
	f := d2.Dot(r)

	var s, t float64
	switch {
	case a <= eps && e <= eps:
		return p1, p2
	case a <= eps:
		s = 0
		t = Clamp(f/e, 0, 1)
	default:
		c := d1.Dot(r)
		if e <= eps {
			t = 0
			s = Clamp(-c/a, 0, 1)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom != 0 {
				s = Clamp((b*f-c*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = Clamp(-c/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = Clamp((b-c)/a, 0, 1)
			}
		}
	}
	return p1.Add(d1.Scale(s)), p2.Add(d2.Scale(t))
}

// SegmentsIntersect reports whether segments ab and cd touch or cross.
func SegmentsIntersect(a, b, c, d Vec2) bool {
	p, q := ClosestPointsSegments(a, b, c, d)
	return Distance(p, q) <= 1e-9
}

// SampleSegment returns n evenly spaced points from a to b inclusive.
func SampleSegment(a, b Vec2, n int) []Vec2 {
	if n < 2 {
		n = 2
	}
	points := make([]Vec2, n)
	step := b.Sub(a).Scale(1 / float64(n-1))
	for i := 0; i < n; i++ {
		points[i] = a.Add(step.Scale(float64(i)))
	}
	return points
}

// SampleCount returns max(2, ceil(length/spacing)).
func SampleCount(length, spacing float64) int {
	if spacing <= 0 {
		return 2
	}
	n := int(math.Ceil(length / spacing))
	if n < 2 {
		return 2
	}
	return n
}
