package motion

import (
	"math"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/spatial"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
)

// ObstacleCache indexes the static, non-trigger colliders of the current
// map. It builds lazily on first use and must be Reset whenever the map's
// static geometry changes.
type ObstacleCache struct {
	world *world.World
	grid  *spatial.Grid
	built bool
}

func NewObstacleCache(w *world.World, cellSize float64) *ObstacleCache {
	return &ObstacleCache{world: w, grid: spatial.NewGrid(cellSize)}
}

// IsObstacle reports whether e blocks movement as static geometry.
func IsObstacle(e *state.Entity) bool {
	return e != nil && e.Collider != nil && e.Collider.IsStatic && !e.Collider.IsTrigger &&
		e.Shape != nil && e.Transform != nil
}

// Reset drops the index; the next query rebuilds it.
func (c *ObstacleCache) Reset() {
	c.grid.Reset()
	c.built = false
}

// Len builds the index if needed and returns the obstacle count.
func (c *ObstacleCache) Len() int {
	c.build()
	return c.grid.Len()
}

func (c *ObstacleCache) build() {
	if c.built {
		return
	}
	c.built = true
	c.world.Each(func(e *state.Entity) {
		if IsObstacle(e) {
			c.grid.Upsert(e.ID, e.Shape.Bounds(e.Transform.Position))
		}
	})
}

// Near returns the obstacles whose bounds touch area, in id order.
func (c *ObstacleCache) Near(area geometry.Rect) []*state.Entity {
	c.build()
	ids := c.grid.Query(area)
	out := make([]*state.Entity, 0, len(ids))
	for _, id := range ids {
		if e := c.world.Get(id); IsObstacle(e) {
			out = append(out, e)
		}
	}
	return out
}

// nearestSurface returns the point on e's shape closest to p and the
// distance to it. Oriented boxes use their bounding rectangle.
func nearestSurface(e *state.Entity, p geometry.Vec2) (geometry.Vec2, float64) {
	shape, pos := e.Shape, e.Transform.Position
	switch shape.Kind {
	case geometry.KindCircle, geometry.KindPoint:
		center := shape.Center(pos)
		d := geometry.Distance(p, center)
		return center, math.Max(0, d-shape.EffectiveRadius())
	case geometry.KindCapsule:
		a, b, ok := shape.WorldSegment(pos)
		if !ok {
			return pos, geometry.Distance(p, pos)
		}
		closest := geometry.ClosestPointOnSegment(p, a, b)
		return closest, math.Max(0, geometry.Distance(p, closest)-shape.Radius)
	default:
		r := shape.Bounds(pos)
		closest := geometry.Vec2{X: geometry.Clamp(p.X, r.X, r.MaxX()), Y: geometry.Clamp(p.Y, r.Y, r.MaxY())}
		if closest == p {
			return r.Center(), 0
		}
		return closest, geometry.Distance(p, closest)
	}
}
