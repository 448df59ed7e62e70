package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Kind selects the primitive a Shape describes.
type Kind string

const (
	KindCircle  Kind = "circle"
	KindAABB    Kind = "aabb"
	KindOBB     Kind = "obb"
	KindCapsule Kind = "capsule"
	KindPoint   Kind = "point"
)

var (
	ErrUnknownKind       = errors.New("geometry: unknown shape kind")
	ErrNegativeDimension = errors.New("geometry: negative shape dimension")
	ErrMissingSegment    = errors.New("geometry: capsule without segment")
)

// Segment is a line segment in the owner's local frame.
type Segment struct {
	P1 Vec2 `json:"p1"`
	P2 Vec2 `json:"p2"`
}

// Shape is pure geometry relative to an owning transform. The centre of the
// shape is the owner position plus Offset; Width and Height are full extents.
type Shape struct {
	Kind     Kind     `json:"kind"`
	Radius   float64  `json:"radius,omitempty"`
	Width    float64  `json:"width,omitempty"`
	Height   float64  `json:"height,omitempty"`
	Rotation float64  `json:"rotation,omitempty"`
	Offset   Vec2     `json:"offset"`
	Segment  *Segment `json:"segment,omitempty"`
}

func Circle(radius float64) Shape {
	return Shape{Kind: KindCircle, Radius: radius}
}

func Box(width, height float64) Shape {
	return Shape{Kind: KindAABB, Width: width, Height: height}
}

func OrientedBox(width, height, rotation float64) Shape {
	return Shape{Kind: KindOBB, Width: width, Height: height, Rotation: rotation}
}

func Capsule(p1, p2 Vec2, radius float64) Shape {
	return Shape{Kind: KindCapsule, Radius: radius, Segment: &Segment{P1: p1, P2: p2}}
}

func Point() Shape {
	return Shape{Kind: KindPoint}
}

// Validate reports malformed shape data.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindCircle, KindAABB, KindOBB, KindPoint:
	case KindCapsule:
		if s.Segment == nil {
			return ErrMissingSegment
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if s.Radius < 0 || s.Width < 0 || s.Height < 0 {
		return ErrNegativeDimension
	}
	if math.IsNaN(s.Radius) || math.IsNaN(s.Width) || math.IsNaN(s.Height) || math.IsNaN(s.Rotation) {
		return ErrNegativeDimension
	}
	return nil
}

// Center returns the world-space centre of the shape for an owner at pos.
func (s Shape) Center(pos Vec2) Vec2 {
	return pos.Add(s.Offset)
}

// HalfExtents returns half the width and height.
func (s Shape) HalfExtents() (float64, float64) {
	return s.Width / 2, s.Height / 2
}

// Vertices returns the four box corners in world space. The order walks the
// edges so consecutive pairs form the polygon outline. Only boxes have
// vertices; other kinds return nil.
func (s Shape) Vertices(pos Vec2) []Vec2 {
	if s.Kind != KindAABB && s.Kind != KindOBB {
		return nil
	}
	center := s.Center(pos)
	hw, hh := s.HalfExtents()
	corners := []Vec2{
		{X: -hw, Y: -hh},
		{X: hw, Y: -hh},
		{X: hw, Y: hh},
		{X: -hw, Y: hh},
	}
	rotation := 0.0
	if s.Kind == KindOBB {
		rotation = s.Rotation
	}
	for i, corner := range corners {
		corners[i] = center.Add(corner.Rotate(rotation))
	}
	return corners
}

// WorldSegment returns the capsule segment endpoints in world space.
func (s Shape) WorldSegment(pos Vec2) (Vec2, Vec2, bool) {
	if s.Segment == nil {
		return Vec2{}, Vec2{}, false
	}
	center := s.Center(pos)
	return center.Add(s.Segment.P1.Rotate(s.Rotation)), center.Add(s.Segment.P2.Rotate(s.Rotation)), true
}

// EffectiveRadius approximates the shape as a circle for sweeps and steering.
// Boxes use half of their smaller extent so thin sensors stay thin.
func (s Shape) EffectiveRadius() float64 {
	switch s.Kind {
	case KindCircle, KindCapsule:
		return s.Radius
	case KindAABB, KindOBB:
		return math.Min(s.Width, s.Height) / 2
	default:
		return 0
	}
}

// BoundingRadius is the radius of a circle around the centre enclosing the shape.
func (s Shape) BoundingRadius() float64 {
	switch s.Kind {
	case KindCircle:
		return s.Radius
	case KindAABB, KindOBB:
		return math.Hypot(s.Width, s.Height) / 2
	case KindCapsule:
		if s.Segment == nil {
			return s.Radius
		}
		return math.Max(s.Segment.P1.Len(), s.Segment.P2.Len()) + s.Radius
	default:
		return 0
	}
}

// Bounds returns the axis-aligned bounding rectangle in world space.
func (s Shape) Bounds(pos Vec2) Rect {
	center := s.Center(pos)
	switch s.Kind {
	case KindCircle:
		return Rect{X: center.X - s.Radius, Y: center.Y - s.Radius, Width: s.Radius * 2, Height: s.Radius * 2}
	case KindAABB, KindOBB:
		return BoundsOf(s.Vertices(pos))
	case KindCapsule:
		a, b, ok := s.WorldSegment(pos)
		if !ok {
			return Rect{X: center.X, Y: center.Y}
		}
		r := BoundsOf([]Vec2{a, b})
		return r.Inflate(s.Radius)
	default:
		return Rect{X: center.X, Y: center.Y}
	}
}
