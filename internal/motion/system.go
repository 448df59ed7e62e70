// Package motion drives every non-player mover from its Motion component.
// The runtime status it writes is a read-only signal for higher AI layers.
package motion

import (
	"context"
	"math"
	"math/rand"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
	"glade-runner/server/logging/simulation"
)

const (
	defaultReachDistance  = 4.0
	defaultStuckThreshold = 1e-3
	arriveEpsilon         = 1e-6
)

// System integrates motion for one world.
type System struct {
	world     *world.World
	obstacles *ObstacleCache
	publisher logging.Publisher
	rng       *rand.Rand

	// lastSeen tracks target positions between steps for predictive aim.
	lastSeen map[state.EntityID]geometry.Vec2
	seen     map[state.EntityID]geometry.Vec2
}

func NewSystem(w *world.World, obstacles *ObstacleCache, publisher logging.Publisher) *System {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if obstacles == nil {
		obstacles = NewObstacleCache(w, 0)
	}
	return &System{
		world:     w,
		obstacles: obstacles,
		publisher: publisher,
		rng:       w.RNG("motion.wander"),
		lastSeen:  make(map[state.EntityID]geometry.Vec2),
		seen:      make(map[state.EntityID]geometry.Vec2),
	}
}

func (s *System) Obstacles() *ObstacleCache {
	return s.obstacles
}

// Reset forgets per-map state: the obstacle index and tracked targets.
func (s *System) Reset() {
	s.obstacles.Reset()
	clear(s.lastSeen)
	clear(s.seen)
}

// Step advances every root entity that has Motion and a Transform by dt
// seconds. Children follow their parent through the world's transform pass.
func (s *System) Step(dt float64) {
	if dt <= 0 {
		return
	}
	clear(s.seen)
	s.world.Each(func(e *state.Entity) {
		if e.Motion == nil || e.Transform == nil || e.Parent != nil {
			return
		}
		s.stepEntity(e, dt)
	})
	s.lastSeen, s.seen = s.seen, s.lastSeen
}

type plan struct {
	velocity geometry.Vec2
	status   state.MotionStatus
	// snap places the entity directly instead of integrating velocity.
	snap    *geometry.Vec2
	heading geometry.Vec2
}

func (s *System) stepEntity(e *state.Entity, dt float64) {
	m := e.Motion
	rt := &m.Runtime
	if rt.Status == "" {
		rt.Status = state.StatusIdle
	}
	previous := rt.Status
	pos := e.Transform.Position

	stuck := s.trackStuck(m, pos, dt)
	rt.LastPosition = pos
	rt.HasLast = true

	var p plan
	switch m.Mode {
	case state.MotionLine, state.MotionWave:
		p = s.line(e, m)
	case state.MotionFollow:
		p = s.follow(e, m, dt, false)
	case state.MotionSteerFollow:
		p = s.follow(e, m, dt, true)
	case state.MotionHoming:
		p = s.homing(e, m, dt)
	case state.MotionOrbit:
		p = s.orbit(e, m, dt)
	case state.MotionPath:
		p = s.path(e, m, dt)
	default:
		p = plan{status: state.StatusIdle}
	}

	rt.DesiredVelocity = p.velocity
	if !p.heading.IsZero() {
		rt.Heading = p.heading.Normalize()
	} else if !p.velocity.IsZero() {
		rt.Heading = p.velocity.Normalize()
	}

	if p.snap != nil {
		rt.Velocity = p.snap.Sub(pos).Scale(1 / dt)
		e.Transform.Position = *p.snap
	} else {
		rt.Velocity = approach(rt.Velocity, p.velocity, m.Acceleration, m.Deceleration, dt)
		if m.MaxSpeed > 0 {
			rt.Velocity = rt.Velocity.ClampLen(m.MaxSpeed)
		}
		e.Transform.Position = pos.Add(rt.Velocity.Scale(dt))
	}

	if m.Wave != nil {
		e.Transform.Position = e.Transform.Position.Add(waveDisplacement(m.Wave, rt.Heading, rt.Elapsed, dt))
	}
	rt.Elapsed += dt

	if stuck && p.status == state.StatusMoving {
		p.status = state.StatusStuck
	}
	rt.Status = p.status
	if rt.Status != previous {
		simulation.MotionStatus(context.Background(), s.publisher, s.world.Tick(),
			logging.EntityID(uint64(e.ID), logging.EntityKindEntity),
			simulation.MotionStatusPayload{From: string(previous), To: string(rt.Status)})
	}
}

// trackStuck measures the displacement since the previous step and reports
// whether the entity has been pinned for StuckDuration seconds.
func (s *System) trackStuck(m *state.Motion, pos geometry.Vec2, dt float64) bool {
	rt := &m.Runtime
	if m.StuckDuration <= 0 || !rt.HasLast || rt.DesiredVelocity.IsZero() {
		rt.StuckTimer = 0
		return false
	}
	threshold := m.StuckThreshold
	if threshold <= 0 {
		threshold = defaultStuckThreshold
	}
	if geometry.Distance(pos, rt.LastPosition) < threshold {
		rt.StuckTimer += dt
	} else {
		rt.StuckTimer = 0
	}
	return rt.StuckTimer >= m.StuckDuration
}

// approach moves current towards desired at the acceleration rate when
// speeding up and the deceleration rate when slowing down. A zero rate is
// instant.
func approach(current, desired geometry.Vec2, accel, decel, dt float64) geometry.Vec2 {
	rate := accel
	if desired.LenSq() < current.LenSq() {
		rate = decel
	}
	if rate <= 0 {
		return desired
	}
	diff := desired.Sub(current)
	step := rate * dt
	if diff.Len() <= step {
		return desired
	}
	return current.Add(diff.Normalize().Scale(step))
}

// seek returns a velocity towards target that stops at stop distance
// without overshooting within one step.
func seek(pos, target geometry.Vec2, speed, stop, dt float64) geometry.Vec2 {
	delta := target.Sub(pos)
	dist := delta.Len()
	if dist <= stop+arriveEpsilon || speed <= 0 {
		return geometry.Vec2{}
	}
	if remaining := dist - stop; speed*dt > remaining {
		speed = remaining / dt
	}
	return delta.Normalize().Scale(speed)
}

// waveDisplacement integrates A·sin(2πft+φ) over one step along the axis
// perpendicular to heading, or along heading when w.Along is set.
func waveDisplacement(w *state.WaveParams, heading geometry.Vec2, elapsed, dt float64) geometry.Vec2 {
	if w.Amplitude == 0 || w.Frequency == 0 {
		return geometry.Vec2{}
	}
	axis := heading.Normalize()
	if axis.IsZero() {
		axis = geometry.Vec2{X: 1}
	}
	if !w.Along {
		axis = axis.Perp()
	}
	omega := 2 * math.Pi * w.Frequency
	delta := w.Amplitude * (math.Sin(omega*(elapsed+dt)+w.Phase) - math.Sin(omega*elapsed+w.Phase))
	return axis.Scale(delta)
}
