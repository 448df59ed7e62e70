package collision

import (
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// ClampToBounds keeps a shape inside [0,width]x[0,height] by moving its
// transform. Circles and points clamp their centre by the radius; boxes and
// capsules clamp their bounding rectangle. Reports whether a correction was
// applied.
func ClampToBounds(shape *geometry.Shape, t *state.Transform, width, height float64) bool {
	if shape == nil || t == nil || width <= 0 || height <= 0 {
		return false
	}
	if shape.Validate() != nil {
		return false
	}

	bounds := shape.Bounds(t.Position)
	dx := axisCorrection(bounds.X, bounds.MaxX(), width)
	dy := axisCorrection(bounds.Y, bounds.MaxY(), height)
	if dx == 0 && dy == 0 {
		return false
	}
	t.Position = t.Position.Add(geometry.Vec2{X: dx, Y: dy})
	return true
}

func axisCorrection(min, max, limit float64) float64 {
	switch {
	case min < 0:
		return -min
	case max > limit:
		return limit - max
	default:
		return 0
	}
}
