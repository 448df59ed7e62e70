package geometry

import (
	"errors"
	"math"
	"testing"
)

func TestVecNormalizeZeroIsSafe(t *testing.T) {
	if got := (Vec2{}).Normalize(); got != (Vec2{}) {
		t.Fatalf("expected zero vector, got %+v", got)
	}
	got := V(3, 4).Normalize()
	if !NearlyEqual(got.Len(), 1, 1e-12) {
		t.Fatalf("expected unit length, got %f", got.Len())
	}
}

func TestVecRotateQuarterTurn(t *testing.T) {
	got := V(1, 0).Rotate(math.Pi / 2)
	if !NearlyEqual(got.X, 0, 1e-12) || !NearlyEqual(got.Y, 1, 1e-12) {
		t.Fatalf("expected (0,1), got %+v", got)
	}
}

func TestShapeValidate(t *testing.T) {
	if err := Circle(-1).Validate(); !errors.Is(err, ErrNegativeDimension) {
		t.Fatalf("expected ErrNegativeDimension, got %v", err)
	}
	if err := (Shape{Kind: "blob"}).Validate(); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if err := (Shape{Kind: KindCapsule, Radius: 1}).Validate(); !errors.Is(err, ErrMissingSegment) {
		t.Fatalf("expected ErrMissingSegment, got %v", err)
	}
	if err := Box(4, 2).Validate(); err != nil {
		t.Fatalf("expected valid box, got %v", err)
	}
}

func TestShapeBoundsFollowOffsetAndRotation(t *testing.T) {
	box := OrientedBox(10, 10, math.Pi/4)
	box.Offset = V(2, 0)
	r := box.Bounds(V(10, 10))
	half := 5 * math.Sqrt2
	if !NearlyEqual(r.X, 12-half, 1e-9) || !NearlyEqual(r.Width, 2*half, 1e-9) {
		t.Fatalf("unexpected bounds %+v", r)
	}
}

func TestClosestPointsSegmentsParallel(t *testing.T) {
	p, q := ClosestPointsSegments(V(0, 0), V(10, 0), V(2, 3), V(8, 3))
	if !NearlyEqual(Distance(p, q), 3, 1e-9) {
		t.Fatalf("expected distance 3, got %f (%+v, %+v)", Distance(p, q), p, q)
	}
}

func TestSampleSegmentIncludesEndpoints(t *testing.T) {
	points := SampleSegment(V(0, 0), V(100, 0), SampleCount(100, 20))
	if len(points) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(points))
	}
	if points[0] != V(0, 0) || points[4] != V(100, 0) {
		t.Fatalf("expected endpoints to be sampled, got %+v", points)
	}
	if SampleCount(1, 20) != 2 {
		t.Fatalf("expected at least two samples")
	}
}
