package collision

import (
	"math"

	"glade-runner/server/internal/geometry"
)

// fallbackAxis separates shapes whose centres coincide.
var fallbackAxis = geometry.Vec2{X: 1, Y: 0}

func circleCircle(ca geometry.Vec2, ra float64, cb geometry.Vec2, rb float64) (geometry.Vec2, bool) {
	delta := cb.Sub(ca)
	distSq := delta.LenSq()
	radiusSum := ra + rb
	if distSq >= radiusSum*radiusSum {
		return geometry.Vec2{}, false
	}
	if distSq == 0 {
		return fallbackAxis.Scale(radiusSum), true
	}
	dist := math.Sqrt(distSq)
	return delta.Scale((radiusSum - dist) / dist), true
}

// pushCircleOutOfBox returns the displacement that moves a circle out of an
// unrotated box centred at boxCenter.
func pushCircleOutOfBox(c geometry.Vec2, r float64, boxCenter geometry.Vec2, hw, hh float64) (geometry.Vec2, bool) {
	minX, maxX := boxCenter.X-hw, boxCenter.X+hw
	minY, maxY := boxCenter.Y-hh, boxCenter.Y+hh

	closest := geometry.Vec2{
		X: geometry.Clamp(c.X, minX, maxX),
		Y: geometry.Clamp(c.Y, minY, maxY),
	}
	d := c.Sub(closest)
	distSq := d.LenSq()

	if distSq == 0 {
		left := c.X - minX
		right := maxX - c.X
		top := c.Y - minY
		bottom := maxY - c.Y

		minDist := left
		direction := 0
		if right < minDist {
			minDist = right
			direction = 1
		}
		if top < minDist {
			minDist = top
			direction = 2
		}
		if bottom < minDist {
			minDist = bottom
			direction = 3
		}

		depth := minDist + r
		if depth <= 0 {
			return geometry.Vec2{}, false
		}
		switch direction {
		case 0:
			return geometry.Vec2{X: -depth}, true
		case 1:
			return geometry.Vec2{X: depth}, true
		case 2:
			return geometry.Vec2{Y: -depth}, true
		default:
			return geometry.Vec2{Y: depth}, true
		}
	}

	if distSq >= r*r {
		return geometry.Vec2{}, false
	}
	dist := math.Sqrt(distSq)
	return d.Scale((r - dist) / dist), true
}

// circleAABB resolves round a against box b.
func circleAABB(a, b body) (geometry.Vec2, bool) {
	hw, hh := b.shape.HalfExtents()
	push, ok := pushCircleOutOfBox(a.center(), a.radius(), b.center(), hw, hh)
	if !ok {
		return geometry.Vec2{}, false
	}
	return push.Neg(), true
}

// circleOBB moves the circle into the box's unrotated frame, resolves it as a
// circle against an AABB and rotates the result back to world space.
func circleOBB(a, b body) (geometry.Vec2, bool) {
	rotation := b.shape.Rotation
	local := a.center().Sub(b.center()).Rotate(-rotation)
	hw, hh := b.shape.HalfExtents()
	push, ok := pushCircleOutOfBox(local, a.radius(), geometry.Vec2{}, hw, hh)
	if !ok {
		return geometry.Vec2{}, false
	}
	return push.Rotate(rotation).Neg(), true
}
