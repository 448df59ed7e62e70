package motion

import (
	"math"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

const (
	// DirectionCount is the number of compass directions sampled.
	DirectionCount = 8
	// DangerConeCos is cos(60°): an obstacle marks every direction within 60°.
	DangerConeCos = 0.5
	// DangerVeto removes a direction outright.
	DangerVeto = 0.9
)

// Directions are the sampled unit vectors, starting at +X and turning by 45°.
var Directions = func() [DirectionCount]geometry.Vec2 {
	var dirs [DirectionCount]geometry.Vec2
	for i := range dirs {
		angle := float64(i) * 2 * math.Pi / DirectionCount
		dirs[i] = geometry.Vec2{X: math.Cos(angle), Y: math.Sin(angle)}
	}
	return dirs
}()

// ContextMap holds the per-direction interest and danger of one decision.
type ContextMap struct {
	Interest [DirectionCount]float64
	Danger   [DirectionCount]float64
}

// AddInterest raises interest towards toward, scaled by weight.
func (c *ContextMap) AddInterest(toward geometry.Vec2, weight float64) {
	unit := toward.Normalize()
	if unit.IsZero() || weight == 0 {
		return
	}
	for i, dir := range Directions {
		c.Interest[i] += weight * math.Max(0, dir.Dot(unit))
	}
}

// AddDanger marks every direction within the danger cone of toward with
// strength, keeping the maximum per direction.
func (c *ContextMap) AddDanger(toward geometry.Vec2, strength float64) {
	unit := toward.Normalize()
	if unit.IsZero() || strength <= 0 {
		return
	}
	strength = math.Min(strength, 1)
	for i, dir := range Directions {
		if dir.Dot(unit) >= DangerConeCos && strength > c.Danger[i] {
			c.Danger[i] = strength
		}
	}
}

// Score applies the veto and the interest·(1−danger) weighting.
func (c *ContextMap) Score(i int) float64 {
	if c.Danger[i] >= DangerVeto {
		return -1
	}
	return c.Interest[i] * (1 - c.Danger[i])
}

// Choose returns the best direction and whether it scored above zero. When
// nothing scores, escape selects the least dangerous direction instead and
// the flag stays false. The first index wins ties.
func (c *ContextMap) Choose(escape bool) (geometry.Vec2, bool) {
	best, bestScore := 0, math.Inf(-1)
	for i := range Directions {
		if score := c.Score(i); score > bestScore {
			best, bestScore = i, score
		}
	}
	if bestScore > 0 {
		return Directions[best], true
	}
	if !escape {
		return geometry.Vec2{}, false
	}
	calm := 0
	for i := range Directions {
		if c.Danger[i] < c.Danger[calm] {
			calm = i
		}
	}
	return Directions[calm], false
}

// steer fills a context map for e heading to aim and picks a direction.
func (s *System) steer(e *state.Entity, profile state.MotionSteerProfile, aim geometry.Vec2, nearTarget bool) (geometry.Vec2, bool) {
	pos := e.Transform.Position
	toTarget := aim.Sub(pos)

	var ctx ContextMap
	ctx.AddInterest(toTarget, profile.Seek)
	ctx.AddInterest(toTarget.Neg(), profile.Flee)

	senseRadius := profile.SenseRadius
	if senseRadius <= 0 {
		senseRadius = state.DefaultSteerProfile().SenseRadius
	}
	if profile.PortalAttract > 0 {
		s.world.Each(func(other *state.Entity) {
			if other.Portal == nil || other.Transform == nil {
				return
			}
			delta := other.Transform.Position.Sub(pos)
			if delta.Len() <= senseRadius {
				ctx.AddInterest(delta, profile.PortalAttract)
			}
		})
	}
	if profile.Wander > 0 {
		for i := range ctx.Interest {
			ctx.Interest[i] += profile.Wander * s.rng.Float64() * 0.25
		}
	}

	ownRadius := 0.0
	if e.Shape != nil {
		ownRadius = e.Shape.EffectiveRadius()
	}
	if profile.DangerRadius > 0 && profile.AvoidObstacle > 0 {
		area := geometry.Rect{X: pos.X - senseRadius, Y: pos.Y - senseRadius, Width: senseRadius * 2, Height: senseRadius * 2}
		for _, obstacle := range s.obstacles.Near(area) {
			point, dist := nearestSurface(obstacle, pos)
			dist = math.Max(0, dist-ownRadius)
			if dist >= profile.DangerRadius {
				continue
			}
			ctx.AddDanger(point.Sub(pos), (1-dist/profile.DangerRadius)*profile.AvoidObstacle)
		}
	}
	if profile.SeparationRadius > 0 && profile.Separation > 0 {
		s.world.Each(func(other *state.Entity) {
			if other == e || other.Motion == nil || other.Transform == nil {
				return
			}
			delta := other.Transform.Position.Sub(pos)
			if d := delta.Len(); d < profile.SeparationRadius {
				ctx.AddDanger(delta, (1-d/profile.SeparationRadius)*profile.Separation)
			}
		})
	}

	return ctx.Choose(!nearTarget)
}
