// Package physics applies collision corrections between solid colliders and
// keeps dynamic bodies inside the map bounds.
package physics

import (
	"glade-runner/server/internal/collision"
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
)

// DefaultIterations bounds the relaxation passes per step.
const DefaultIterations = 4

// StaticIndex finds static colliders whose bounds touch area.
type StaticIndex interface {
	Near(area geometry.Rect) []*state.Entity
}

// Stats summarises one Step.
type Stats struct {
	Bodies     int
	Contacts   int
	Iterations int
	Clamped    int
}

// System resolves overlaps for one world.
type System struct {
	world      *world.World
	statics    StaticIndex
	iterations int

	bodies []*state.Entity
}

// NewSystem builds a physics pass. A nil statics index scans the world on
// every query.
func NewSystem(w *world.World, statics StaticIndex, iterations int) *System {
	if statics == nil {
		statics = scan{world: w}
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &System{world: w, statics: statics, iterations: iterations}
}

func isSolid(e *state.Entity) bool {
	return e != nil && e.Collider != nil && !e.Collider.IsTrigger && e.Shape != nil && e.Transform != nil
}

func isDynamic(e *state.Entity) bool {
	return isSolid(e) && !e.Collider.IsStatic && e.Parent == nil
}

// Step pushes dynamic bodies out of static geometry and out of each other,
// then clamps them to the scene bounds.
func (s *System) Step() Stats {
	s.bodies = s.bodies[:0]
	s.world.Each(func(e *state.Entity) {
		if isDynamic(e) {
			s.bodies = append(s.bodies, e)
		}
	})
	stats := Stats{Bodies: len(s.bodies)}

	for stats.Iterations < s.iterations {
		stats.Iterations++
		contacts := 0
		for i, a := range s.bodies {
			contacts += s.resolveStatics(a)
			for _, b := range s.bodies[i+1:] {
				if !a.Collider.Accepts(b.Collider) {
					continue
				}
				mtv, ok := collision.Resolve(a.Shape, a.Transform, b.Shape, b.Transform)
				if !ok {
					continue
				}
				half := mtv.Scale(0.5)
				a.Transform.Position = a.Transform.Position.Sub(half)
				b.Transform.Position = b.Transform.Position.Add(half)
				contacts++
			}
		}
		stats.Contacts += contacts
		if contacts == 0 {
			break
		}
	}

	if cfg := s.world.SceneConfig(); cfg != nil {
		for _, e := range s.bodies {
			if collision.ClampToBounds(e.Shape, e.Transform, cfg.SceneConfig.Width, cfg.SceneConfig.Height) {
				stats.Clamped++
			}
		}
	}
	return stats
}

func (s *System) resolveStatics(body *state.Entity) int {
	contacts := 0
	for _, wall := range s.statics.Near(body.Shape.Bounds(body.Transform.Position)) {
		if wall == body || !isSolid(wall) || !wall.Collider.IsStatic || !body.Collider.Accepts(wall.Collider) {
			continue
		}
		mtv, ok := collision.Resolve(wall.Shape, wall.Transform, body.Shape, body.Transform)
		if !ok {
			continue
		}
		body.Transform.Position = body.Transform.Position.Add(mtv)
		contacts++
	}
	return contacts
}

// scan is the index used when no cache is supplied.
type scan struct {
	world *world.World
}

func (s scan) Near(area geometry.Rect) []*state.Entity {
	var out []*state.Entity
	s.world.Each(func(e *state.Entity) {
		if isSolid(e) && e.Collider.IsStatic && e.Shape.Bounds(e.Transform.Position).Intersects(area) {
			out = append(out, e)
		}
	})
	return out
}
