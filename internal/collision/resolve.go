// Package collision implements the narrow phase shared by physics and sensing.
//
// Every resolver returns a minimum translation vector (MTV) that moves the
// second shape away from the first, together with a flag reporting whether
// the shapes overlap at all. Malformed input never panics; it simply reports
// no collision so a single bad entity cannot stall a tick.
package collision

import (
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// CapsuleSampleSpacing is the distance between sampled circles when a capsule
// is tested against a box.
const CapsuleSampleSpacing = 20.0

type body struct {
	shape *geometry.Shape
	pos   geometry.Vec2
}

func (b body) center() geometry.Vec2 {
	return b.shape.Center(b.pos)
}

func (b body) radius() float64 {
	if b.shape.Kind == geometry.KindPoint {
		return 0
	}
	return b.shape.Radius
}

// Resolve tests shape a owned by ta against shape b owned by tb. The returned
// vector moves b out of a; the flag is false when they do not overlap or when
// either side is missing or malformed.
func Resolve(a *geometry.Shape, ta *state.Transform, b *geometry.Shape, tb *state.Transform) (geometry.Vec2, bool) {
	if ta == nil || tb == nil {
		return geometry.Vec2{}, false
	}
	return ResolveAt(a, ta.Position, b, tb.Position)
}

// ResolveAt is Resolve with explicit owner positions.
func ResolveAt(a *geometry.Shape, pa geometry.Vec2, b *geometry.Shape, pb geometry.Vec2) (geometry.Vec2, bool) {
	if a == nil || b == nil {
		return geometry.Vec2{}, false
	}
	if a.Validate() != nil || b.Validate() != nil {
		return geometry.Vec2{}, false
	}
	return resolve(body{shape: a, pos: pa}, body{shape: b, pos: pb})
}

// Overlaps is the trigger form of Resolve: overlap only, no correction.
func Overlaps(a *geometry.Shape, ta *state.Transform, b *geometry.Shape, tb *state.Transform) bool {
	_, ok := Resolve(a, ta, b, tb)
	return ok
}

func isRound(kind geometry.Kind) bool {
	return kind == geometry.KindCircle || kind == geometry.KindPoint
}

func isBox(kind geometry.Kind) bool {
	return kind == geometry.KindAABB || kind == geometry.KindOBB
}

func resolve(a, b body) (geometry.Vec2, bool) {
	ka, kb := a.shape.Kind, b.shape.Kind
	switch {
	case isRound(ka) && isRound(kb):
		return circleCircle(a.center(), a.radius(), b.center(), b.radius())
	case isRound(ka) && kb == geometry.KindAABB:
		return circleAABB(a, b)
	case isRound(ka) && kb == geometry.KindOBB:
		return circleOBB(a, b)
	case ka == geometry.KindAABB && kb == geometry.KindAABB:
		return aabbAABB(a, b)
	case isBox(ka) && isBox(kb):
		return polygonPolygon(a, b)
	case ka == geometry.KindCapsule:
		return capsuleVs(a, b)
	case isBox(ka) && isRound(kb), kb == geometry.KindCapsule:
		return swapped(a, b)
	}
	return geometry.Vec2{}, false
}

// swapped resolves the pair in the opposite order and flips the MTV.
func swapped(a, b body) (geometry.Vec2, bool) {
	mtv, ok := resolve(b, a)
	if !ok {
		return geometry.Vec2{}, false
	}
	return mtv.Neg(), true
}
