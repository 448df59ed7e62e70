package state

import "glade-runner/server/internal/geometry"

// MotionMode selects how the motion system drives an entity.
type MotionMode string

const (
	MotionNone        MotionMode = "NONE"
	MotionLine        MotionMode = "LINE"
	MotionFollow      MotionMode = "FOLLOW"
	MotionSteerFollow MotionMode = "STEER_FOLLOW"
	MotionHoming      MotionMode = "HOMING"
	MotionOrbit       MotionMode = "ORBIT"
	MotionPath        MotionMode = "PATH"
	MotionWave        MotionMode = "WAVE"
)

// MotionStatus is the read-only runtime signal consumed by AI layers.
type MotionStatus string

const (
	StatusIdle      MotionStatus = "idle"
	StatusMoving    MotionStatus = "moving"
	StatusArrived   MotionStatus = "arrived"
	StatusStuck     MotionStatus = "stuck"
	StatusBlocked   MotionStatus = "blocked"
	StatusSearching MotionStatus = "searching"
)

// TargetSpec identifies what a follower moves towards. EntityID wins over Tag,
// Tag wins over Point.
type TargetSpec struct {
	EntityID    EntityID       `json:"entityId,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	Point       *geometry.Vec2 `json:"point,omitempty"`
	Offset      geometry.Vec2  `json:"offset"`
	PredictTime float64        `json:"predictTime,omitempty"`
}

// IsZero reports whether no target is specified.
func (t TargetSpec) IsZero() bool {
	return t.EntityID == 0 && t.Tag == "" && t.Point == nil
}

// DeadZone suppresses re-centring on an axis while within N units.
type DeadZone struct {
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
}

type LineParams struct {
	Direction geometry.Vec2 `json:"direction"`
	Local     bool          `json:"local,omitempty"`
}

type OrbitParams struct {
	Radius       float64 `json:"radius"`
	AngularSpeed float64 `json:"angularSpeed"`
	Clockwise    bool    `json:"clockwise,omitempty"`
	KeepRadius   bool    `json:"keepRadius,omitempty"`
}

type PathParams struct {
	Waypoints     []geometry.Vec2 `json:"waypoints"`
	Loop          bool            `json:"loop,omitempty"`
	PingPong      bool            `json:"pingPong,omitempty"`
	ReachDistance float64         `json:"reachDistance,omitempty"`
	CurrentIndex  int             `json:"currentIndex"`
	Direction     int             `json:"pathDirection,omitempty"`
}

type WaveParams struct {
	Amplitude float64 `json:"amplitude"`
	Frequency float64 `json:"frequency"`
	Phase     float64 `json:"phase,omitempty"`
	Along     bool    `json:"along,omitempty"`
}

type HomingParams struct {
	// TurnRate is the maximum heading change in radians per second.
	TurnRate float64 `json:"turnRate"`
}

// MotionRuntime is derived state. It is never saved and resets on load.
type MotionRuntime struct {
	Status          MotionStatus
	StuckTimer      float64
	DesiredVelocity geometry.Vec2
	Velocity        geometry.Vec2
	LastPosition    geometry.Vec2
	HasLast         bool
	Elapsed         float64
	OrbitAngle      float64
	OrbitReady      bool
	Heading         geometry.Vec2
	LastTarget      geometry.Vec2
	HasTarget       bool
}

// Motion is the single movement component shared by every non-player mover.
type Motion struct {
	Mode           MotionMode    `json:"mode"`
	Speed          float64       `json:"speed,omitempty"`
	MaxSpeed       float64       `json:"maxSpeed,omitempty"`
	Acceleration   float64       `json:"acceleration,omitempty"`
	Deceleration   float64       `json:"deceleration,omitempty"`
	StopDistance   float64       `json:"stopDistance,omitempty"`
	DeadZoneAxis   DeadZone      `json:"deadZoneAxis"`
	Target         TargetSpec    `json:"target"`
	Line           *LineParams   `json:"line,omitempty"`
	Orbit          *OrbitParams  `json:"orbit,omitempty"`
	Path           *PathParams   `json:"path,omitempty"`
	Wave           *WaveParams   `json:"wave,omitempty"`
	Homing         *HomingParams `json:"homing,omitempty"`
	StuckThreshold float64       `json:"stuckThreshold,omitempty"`
	StuckDuration  float64       `json:"stuckDuration,omitempty"`

	Runtime MotionRuntime `json:"-"`
}

// ResetRuntime clears derived state.
func (m *Motion) ResetRuntime() {
	if m == nil {
		return
	}
	m.Runtime = MotionRuntime{Status: StatusIdle}
}

// MotionSteerProfile carries steering weights so several archetypes can share
// one motion engine with different temperaments.
type MotionSteerProfile struct {
	Seek             float64 `json:"seek"`
	Flee             float64 `json:"flee,omitempty"`
	Arrive           float64 `json:"arrive,omitempty"`
	Wander           float64 `json:"wander,omitempty"`
	Separation       float64 `json:"separation,omitempty"`
	AvoidObstacle    float64 `json:"avoidObstacle"`
	PortalAttract    float64 `json:"portalAttract,omitempty"`
	SenseRadius      float64 `json:"senseRadius,omitempty"`
	DangerRadius     float64 `json:"dangerRadius,omitempty"`
	SeparationRadius float64 `json:"separationRadius,omitempty"`
	ArriveRadius     float64 `json:"arriveRadius,omitempty"`
}

// DefaultSteerProfile is used by STEER_FOLLOW entities without a profile.
func DefaultSteerProfile() MotionSteerProfile {
	return MotionSteerProfile{
		Seek:          1,
		AvoidObstacle: 1,
		SenseRadius:   160,
		DangerRadius:  64,
	}
}
