package motion

import (
	"math"
	"testing"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging/simulation"
	"glade-runner/server/logging/sinks"
)

const eps = 1e-9

func newSystem(t *testing.T) (*world.World, *System, *sinks.MemorySink) {
	t.Helper()
	w, err := world.New(world.Config{}, world.Deps{})
	if err != nil {
		t.Fatalf("world.New returned error: %v", err)
	}
	memory := sinks.NewMemorySink()
	return w, NewSystem(w, NewObstacleCache(w, 32), memory), memory
}

func add(t *testing.T, w *world.World, e *state.Entity) *state.Entity {
	t.Helper()
	if _, err := w.Add(e); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	return e
}

func point(x, y float64) *geometry.Vec2 {
	p := geometry.V(x, y)
	return &p
}

func nearly(a, b geometry.Vec2) bool {
	return geometry.NearlyEqual(a.X, b.X, 1e-6) && geometry.NearlyEqual(a.Y, b.Y, 1e-6)
}

func TestLineMovesAlongDirection(t *testing.T) {
	w, sys, _ := newSystem(t)
	straight := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionLine, Speed: 10, Line: &state.LineParams{Direction: geometry.V(2, 0)}},
	})
	local := &state.Entity{
		Transform: &state.Transform{Rotation: math.Pi / 2},
		Motion:    &state.Motion{Mode: state.MotionLine, Speed: 10, Line: &state.LineParams{Direction: geometry.V(1, 0), Local: true}},
	}
	add(t, w, local)

	sys.Step(0.5)
	if straight.Transform.Position != geometry.V(5, 0) {
		t.Fatalf("expected (5,0), got %+v", straight.Transform.Position)
	}
	if !nearly(local.Transform.Position, geometry.V(0, 5)) {
		t.Fatalf("expected local direction to follow rotation, got %+v", local.Transform.Position)
	}
	if straight.Motion.Runtime.Status != state.StatusMoving {
		t.Fatalf("expected moving, got %s", straight.Motion.Runtime.Status)
	}
}

func TestChildrenAreSkipped(t *testing.T) {
	w, sys, _ := newSystem(t)
	parent := add(t, w, &state.Entity{Transform: state.At(0, 0)})
	child := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Parent:    &state.Parent{ID: parent.ID},
		Motion:    &state.Motion{Mode: state.MotionLine, Speed: 10},
	})
	sys.Step(1)
	if child.Transform.Position != geometry.V(0, 0) {
		t.Fatalf("expected parented entity to stay put, got %+v", child.Transform.Position)
	}
}

func TestFollowArrivesWithoutOvershoot(t *testing.T) {
	w, sys, memory := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion: &state.Motion{
			Mode:         state.MotionFollow,
			Speed:        100,
			StopDistance: 2,
			Target:       state.TargetSpec{Point: point(30, 40)},
		},
	})

	sys.Step(0.1)
	if !nearly(e.Transform.Position, geometry.V(6, 8)) {
		t.Fatalf("expected (6,8) after one step, got %+v", e.Transform.Position)
	}
	for i := 0; i < 10; i++ {
		sys.Step(0.1)
	}
	if d := geometry.Distance(e.Transform.Position, geometry.V(30, 40)); !geometry.NearlyEqual(d, 2, 1e-6) {
		t.Fatalf("expected to stop exactly at stop distance, got %f", d)
	}
	if e.Motion.Runtime.Status != state.StatusArrived {
		t.Fatalf("expected arrived, got %s", e.Motion.Runtime.Status)
	}
	if len(memory.OfType(simulation.EventMotionStatus)) == 0 {
		t.Fatalf("expected status changes to be published")
	}
}

func TestFollowMissingTargetSearches(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionFollow, Speed: 10, Target: state.TargetSpec{Tag: "nobody"}},
	})
	sys.Step(0.1)
	if e.Motion.Runtime.Status != state.StatusSearching {
		t.Fatalf("expected searching, got %s", e.Motion.Runtime.Status)
	}
	if e.Transform.Position != geometry.V(0, 0) {
		t.Fatalf("expected no movement without a target")
	}
}

func TestFollowDeadZoneSuppressesAxis(t *testing.T) {
	w, sys, _ := newSystem(t)
	add(t, w, &state.Entity{Tags: []string{"owner"}, Transform: state.At(3, 50)})
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion: &state.Motion{
			Mode:         state.MotionFollow,
			Speed:        10,
			DeadZoneAxis: state.DeadZone{X: 5},
			Target:       state.TargetSpec{Tag: "owner"},
		},
	})
	sys.Step(1)
	if e.Transform.Position != geometry.V(0, 10) {
		t.Fatalf("expected pure vertical motion, got %+v", e.Transform.Position)
	}
}

func TestAccelerationAndMaxSpeed(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionLine, Speed: 100, MaxSpeed: 50, Acceleration: 10},
	})
	sys.Step(0.1)
	if !nearly(e.Motion.Runtime.Velocity, geometry.V(1, 0)) {
		t.Fatalf("expected velocity (1,0) after accelerating, got %+v", e.Motion.Runtime.Velocity)
	}
	for i := 0; i < 200; i++ {
		sys.Step(0.1)
	}
	if !nearly(e.Motion.Runtime.Velocity, geometry.V(50, 0)) {
		t.Fatalf("expected velocity clamped to 50, got %+v", e.Motion.Runtime.Velocity)
	}
}

func TestPathLoopRevisitsFirstWaypoint(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion: &state.Motion{
			Mode:  state.MotionPath,
			Speed: 1000,
			Path: &state.PathParams{
				Waypoints:     []geometry.Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
				Loop:          true,
				ReachDistance: 1,
			},
		},
	})

	var indices []int
	for i := 0; i < 7; i++ {
		sys.Step(0.1)
		idx := e.Motion.Path.CurrentIndex
		if idx < 0 || idx >= 3 {
			t.Fatalf("index %d left the waypoint range", idx)
		}
		indices = append(indices, idx)
	}
	want := []int{1, 2, 0, 1, 2, 0, 1}
	for i := range want {
		if indices[i] != want[i] {
			t.Fatalf("expected indices %v, got %v", want, indices)
		}
	}
	if e.Motion.Runtime.Status != state.StatusMoving {
		t.Fatalf("looping path should keep moving, got %s", e.Motion.Runtime.Status)
	}
}

func TestPathPingPongAndArrive(t *testing.T) {
	waypoints := []geometry.Vec2{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 20, Y: 0}}

	w, sys, _ := newSystem(t)
	bounce := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionPath, Speed: 1000, Path: &state.PathParams{Waypoints: waypoints, PingPong: true}},
	})
	once := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionPath, Speed: 1000, Path: &state.PathParams{Waypoints: waypoints}},
	})

	var bounceIdx []int
	for i := 0; i < 5; i++ {
		sys.Step(0.1)
		bounceIdx = append(bounceIdx, bounce.Motion.Path.CurrentIndex)
	}
	want := []int{1, 2, 1, 0, 1}
	for i := range want {
		if bounceIdx[i] != want[i] {
			t.Fatalf("expected ping-pong indices %v, got %v", want, bounceIdx)
		}
	}

	if once.Motion.Runtime.Status != state.StatusArrived || once.Motion.Path.CurrentIndex != 2 {
		t.Fatalf("expected non-looping path to arrive at the last waypoint, got %s at %d", once.Motion.Runtime.Status, once.Motion.Path.CurrentIndex)
	}
	if !nearly(once.Transform.Position, geometry.V(20, 0)) {
		t.Fatalf("expected to rest on the last waypoint, got %+v", once.Transform.Position)
	}
}

func TestAdvanceNeverLeavesRange(t *testing.T) {
	cases := []struct {
		name           string
		index, dir, n  int
		loop, pingPong bool
		wantIndex      int
		wantDir        int
		wantDone       bool
	}{
		{name: "middle", index: 1, dir: 1, n: 3, wantIndex: 2, wantDir: 1},
		{name: "loop end", index: 2, dir: 1, n: 3, loop: true, wantIndex: 0, wantDir: 1},
		{name: "loop reverse start", index: 0, dir: -1, n: 3, loop: true, wantIndex: 2, wantDir: -1},
		{name: "pingpong end", index: 2, dir: 1, n: 3, pingPong: true, wantIndex: 1, wantDir: -1},
		{name: "pingpong start", index: 0, dir: -1, n: 3, pingPong: true, wantIndex: 1, wantDir: 1},
		{name: "pingpong single", index: 0, dir: 1, n: 1, pingPong: true, wantIndex: 0, wantDir: -1},
		{name: "done at end", index: 2, dir: 1, n: 3, wantIndex: 2, wantDir: 1, wantDone: true},
		{name: "done at start", index: 0, dir: -1, n: 3, wantIndex: 0, wantDir: -1, wantDone: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, dir, done := advance(tc.index, tc.dir, tc.n, tc.loop, tc.pingPong)
			if idx != tc.wantIndex || dir != tc.wantDir || done != tc.wantDone {
				t.Fatalf("advance = (%d,%d,%v), want (%d,%d,%v)", idx, dir, done, tc.wantIndex, tc.wantDir, tc.wantDone)
			}
		})
	}
}

func TestOrbitKeepRadiusDirection(t *testing.T) {
	for _, clockwise := range []bool{true, false} {
		w, sys, _ := newSystem(t)
		e := add(t, w, &state.Entity{
			Transform: state.At(10, 0),
			Motion: &state.Motion{
				Mode:   state.MotionOrbit,
				Target: state.TargetSpec{Point: point(0, 0)},
				Orbit:  &state.OrbitParams{Radius: 10, AngularSpeed: math.Pi / 2, Clockwise: clockwise, KeepRadius: true},
			},
		})
		sys.Step(1)
		want := geometry.V(0, -10)
		if clockwise {
			want = geometry.V(0, 10)
		}
		if !nearly(e.Transform.Position, want) {
			t.Fatalf("clockwise=%v: expected %+v, got %+v", clockwise, want, e.Transform.Position)
		}
	}
}

func TestOrbitWithoutKeepRadiusIsSpeedLimited(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(10, 0),
		Motion: &state.Motion{
			Mode:   state.MotionOrbit,
			Speed:  1,
			Target: state.TargetSpec{Point: point(0, 0)},
			Orbit:  &state.OrbitParams{Radius: 10, AngularSpeed: math.Pi / 2},
		},
	})
	sys.Step(1)
	if moved := geometry.Distance(e.Transform.Position, geometry.V(10, 0)); moved > 1+eps {
		t.Fatalf("expected at most 1 unit of drift, moved %f", moved)
	}
}

func TestWaveAddsPerpendicularOffset(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion: &state.Motion{
			Mode:  state.MotionWave,
			Speed: 10,
			Line:  &state.LineParams{Direction: geometry.V(1, 0)},
			Wave:  &state.WaveParams{Amplitude: 5, Frequency: 1},
		},
	})
	sys.Step(0.25)
	if !nearly(e.Transform.Position, geometry.V(2.5, 5)) {
		t.Fatalf("expected (2.5,5), got %+v", e.Transform.Position)
	}
}

func TestHomingTurnRateLimitsHeading(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion: &state.Motion{
			Mode:   state.MotionHoming,
			Speed:  10,
			Target: state.TargetSpec{Point: point(0, 100)},
			Line:   &state.LineParams{Direction: geometry.V(1, 0)},
			Homing: &state.HomingParams{TurnRate: math.Pi / 2},
		},
	})
	sys.Step(0.5)
	want := geometry.V(math.Sqrt2/2, math.Sqrt2/2)
	if !nearly(e.Motion.Runtime.Heading, want) {
		t.Fatalf("expected heading %+v, got %+v", want, e.Motion.Runtime.Heading)
	}
}

func TestStuckAfterSustainedZeroDisplacement(t *testing.T) {
	w, sys, _ := newSystem(t)
	e := add(t, w, &state.Entity{
		Transform: state.At(0, 0),
		Motion:    &state.Motion{Mode: state.MotionLine, Speed: 10, StuckDuration: 0.3},
	})

	var statuses []state.MotionStatus
	for i := 0; i < 4; i++ {
		sys.Step(0.1)
		e.Transform.Position = geometry.V(0, 0)
		statuses = append(statuses, e.Motion.Runtime.Status)
	}
	if statuses[2] != state.StatusMoving || statuses[3] != state.StatusStuck {
		t.Fatalf("expected stuck on the fourth step, got %v", statuses)
	}

	sys.Step(0.1)
	if e.Motion.Runtime.Status != state.StatusStuck {
		t.Fatalf("expected to stay stuck while pinned")
	}
	sys.Step(0.1)
	if e.Motion.Runtime.Status != state.StatusMoving {
		t.Fatalf("expected movement to clear stuck, got %s", e.Motion.Runtime.Status)
	}
}
