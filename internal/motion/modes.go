package motion

import (
	"math"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

func (s *System) line(e *state.Entity, m *state.Motion) plan {
	dir := geometry.Vec2{X: 1}
	local := false
	if m.Line != nil {
		dir = m.Line.Direction
		local = m.Line.Local
	}
	dir = dir.Normalize()
	if local {
		dir = dir.Rotate(e.Transform.Rotation)
	}
	if dir.IsZero() || m.Speed <= 0 {
		return plan{status: state.StatusIdle, heading: dir}
	}
	return plan{velocity: dir.Scale(m.Speed), status: state.StatusMoving}
}

// target resolves the motion target to a world point and its velocity.
func (s *System) target(e *state.Entity, spec state.TargetSpec, dt float64) (geometry.Vec2, geometry.Vec2, bool) {
	var tracked *state.Entity
	switch {
	case spec.EntityID != 0:
		tracked = s.world.Get(spec.EntityID)
	case spec.Tag != "":
		best := math.Inf(1)
		for _, candidate := range s.world.FindByTag(spec.Tag) {
			if candidate == e || candidate.Transform == nil {
				continue
			}
			if d := geometry.Distance(candidate.Transform.Position, e.Transform.Position); d < best {
				best, tracked = d, candidate
			}
		}
	case spec.Point != nil:
		return spec.Point.Add(spec.Offset), geometry.Vec2{}, true
	default:
		return geometry.Vec2{}, geometry.Vec2{}, false
	}
	if tracked == nil || tracked == e || tracked.Transform == nil {
		return geometry.Vec2{}, geometry.Vec2{}, false
	}

	pos := tracked.Transform.Position
	s.seen[tracked.ID] = pos
	var velocity geometry.Vec2
	if tracked.Motion != nil {
		velocity = tracked.Motion.Runtime.Velocity
	} else if last, ok := s.lastSeen[tracked.ID]; ok {
		velocity = pos.Sub(last).Scale(1 / dt)
	}
	aim := pos.Add(spec.Offset)
	if spec.PredictTime > 0 {
		aim = aim.Add(velocity.Scale(spec.PredictTime))
	}
	return aim, velocity, true
}

func (s *System) follow(e *state.Entity, m *state.Motion, dt float64, steered bool) plan {
	aim, _, ok := s.target(e, m.Target, dt)
	if !ok {
		return plan{status: state.StatusSearching}
	}
	pos := e.Transform.Position
	delta := aim.Sub(pos)
	if m.DeadZoneAxis.X > 0 && math.Abs(delta.X) <= m.DeadZoneAxis.X {
		delta.X = 0
	}
	if m.DeadZoneAxis.Y > 0 && math.Abs(delta.Y) <= m.DeadZoneAxis.Y {
		delta.Y = 0
	}
	dist := delta.Len()
	if dist <= m.StopDistance+arriveEpsilon {
		return plan{status: state.StatusArrived}
	}

	speed := m.Speed
	profile := state.DefaultSteerProfile()
	if e.SteerProfile != nil {
		profile = *e.SteerProfile
	}
	if steered && profile.Arrive > 0 && profile.ArriveRadius > 0 && dist < profile.ArriveRadius {
		speed *= math.Max(0, 1-profile.Arrive*(1-dist/profile.ArriveRadius))
	}

	if !steered {
		return plan{velocity: seek(pos, pos.Add(delta), speed, m.StopDistance, dt), status: state.StatusMoving}
	}

	near := profile.ArriveRadius > 0 && dist <= profile.ArriveRadius
	dir, viable := s.steer(e, profile, pos.Add(delta), near)
	if !viable {
		return plan{velocity: dir.Scale(speed), status: state.StatusBlocked, heading: dir}
	}
	if remaining := dist - m.StopDistance; speed*dt > remaining {
		speed = remaining / dt
	}
	return plan{velocity: dir.Scale(speed), status: state.StatusMoving}
}

func (s *System) homing(e *state.Entity, m *state.Motion, dt float64) plan {
	aim, _, ok := s.target(e, m.Target, dt)
	if !ok {
		return plan{status: state.StatusSearching}
	}
	pos := e.Transform.Position
	toAim := aim.Sub(pos)
	if dist := toAim.Len(); dist <= m.StopDistance+arriveEpsilon {
		return plan{status: state.StatusArrived}
	}
	want := toAim.Normalize()

	heading := m.Runtime.Heading
	if heading.IsZero() && m.Line != nil {
		heading = m.Line.Direction.Normalize()
	}
	if heading.IsZero() {
		heading = want
	}
	turn := math.Atan2(heading.Cross(want), heading.Dot(want))
	if m.Homing != nil && m.Homing.TurnRate > 0 {
		limit := m.Homing.TurnRate * dt
		turn = math.Max(-limit, math.Min(limit, turn))
	}
	heading = heading.Rotate(turn).Normalize()
	if m.Speed <= 0 {
		return plan{status: state.StatusIdle, heading: heading}
	}
	return plan{velocity: heading.Scale(m.Speed), status: state.StatusMoving, heading: heading}
}

// orbit advances the orbit angle. In y-down screen space a growing angle
// turns clockwise, so Clockwise uses the positive sign.
func (s *System) orbit(e *state.Entity, m *state.Motion, dt float64) plan {
	center, _, ok := s.target(e, m.Target, dt)
	if !ok {
		return plan{status: state.StatusSearching}
	}
	params := state.OrbitParams{}
	if m.Orbit != nil {
		params = *m.Orbit
	}
	rt := &m.Runtime
	pos := e.Transform.Position
	if !rt.OrbitReady {
		offset := pos.Sub(center)
		rt.OrbitAngle = math.Atan2(offset.Y, offset.X)
		rt.OrbitReady = true
	}
	sign := -1.0
	if params.Clockwise {
		sign = 1.0
	}
	rt.OrbitAngle = math.Mod(rt.OrbitAngle+sign*params.AngularSpeed*dt, 2*math.Pi)
	point := center.Add(geometry.Vec2{X: math.Cos(rt.OrbitAngle), Y: math.Sin(rt.OrbitAngle)}.Scale(params.Radius))

	if params.KeepRadius {
		return plan{velocity: point.Sub(pos).Scale(1 / dt), status: state.StatusMoving, snap: &point}
	}
	velocity := point.Sub(pos).Scale(1 / dt)
	if m.Speed > 0 {
		velocity = velocity.ClampLen(m.Speed)
	}
	return plan{velocity: velocity, status: state.StatusMoving}
}

func (s *System) path(e *state.Entity, m *state.Motion, dt float64) plan {
	p := m.Path
	if p == nil || len(p.Waypoints) == 0 {
		return plan{status: state.StatusIdle}
	}
	n := len(p.Waypoints)
	if p.Direction >= 0 {
		p.Direction = 1
	} else {
		p.Direction = -1
	}
	p.CurrentIndex = min(max(p.CurrentIndex, 0), n-1)
	reach := p.ReachDistance
	if reach <= 0 {
		reach = defaultReachDistance
	}

	pos := e.Transform.Position
	for i := 0; i < n; i++ {
		if geometry.Distance(pos, p.Waypoints[p.CurrentIndex]) > reach {
			break
		}
		next, dir, done := advance(p.CurrentIndex, p.Direction, n, p.Loop, p.PingPong)
		if done {
			return plan{status: state.StatusArrived}
		}
		p.CurrentIndex, p.Direction = next, dir
	}
	velocity := seek(pos, p.Waypoints[p.CurrentIndex], m.Speed, 0, dt)
	if velocity.IsZero() {
		return plan{status: state.StatusIdle}
	}
	return plan{velocity: velocity, status: state.StatusMoving}
}

// advance moves a path cursor one step. Loop wraps, PingPong bounces, and
// neither reports done at the end. Loop wins when both are set. The returned
// index always lies in [0, n).
func advance(index, dir, n int, loop, pingPong bool) (int, int, bool) {
	next := index + dir
	switch {
	case next >= n:
		switch {
		case loop:
			return 0, dir, false
		case pingPong:
			return max(n-2, 0), -1, false
		}
		return n - 1, dir, true
	case next < 0:
		switch {
		case loop:
			return n - 1, dir, false
		case pingPong:
			return min(1, n-1), 1, false
		}
		return 0, dir, true
	}
	return next, dir, false
}
