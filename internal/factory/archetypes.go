package factory

import (
	"encoding/json"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// Detection and collision layers shared by the built-in archetypes.
const (
	LayerWorld uint32 = 1 << iota
	LayerPlayer
	LayerEnemy
	LayerProjectile
)

// Built-in entity types.
const (
	TypePlayer   = "player"
	TypeWall     = "wall"
	TypeEnemy    = "enemy"
	TypeFollower = "follower"
	TypeBullet   = "bullet"
	TypePortal   = "portal"
	TypeScenery  = "scenery"
	TypeEntry    = "entry"
)

// Archetype is a Definition that overlays record data on a template entity.
// Every field of the entity may be overridden by the record.
type Archetype struct {
	Name     string
	Template func() *state.Entity
}

func (a Archetype) Type() string {
	return a.Name
}

func (a Archetype) Create(data json.RawMessage) (*state.Entity, error) {
	e := &state.Entity{}
	if a.Template != nil {
		e = a.Template()
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, e); err != nil {
			return nil, err
		}
	}
	if e.Transform == nil {
		e.Transform = &state.Transform{}
	}
	e.Transform.Previous = e.Transform.Position
	e.Motion.ResetRuntime()
	for _, d := range []*state.Detect{e.Detect, e.DamageDetect, e.PortalDetect} {
		d.ResetRuntime()
	}
	return e, nil
}

func (a Archetype) Serialize(e *state.Entity) (json.RawMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func shape(s geometry.Shape) *geometry.Shape {
	return &s
}

// Archetypes returns fresh definitions for every built-in type.
func Archetypes() []Definition {
	return []Definition{
		Archetype{Name: TypePlayer, Template: func() *state.Entity {
			return &state.Entity{
				Name:             "Player",
				Tags:             []string{state.TagPlayer},
				Persistent:       true,
				Shape:            shape(geometry.Circle(12)),
				Collider:         &state.Collider{Layer: LayerPlayer},
				Detectable:       &state.Detectable{Layer: LayerPlayer, Labels: []string{"player"}},
				DamageDetectable: &state.Detectable{Layer: LayerPlayer, Labels: []string{"player"}},
				PortalDetectable: &state.Detectable{Layer: LayerPlayer, Labels: []string{"player"}},
				Sprite:           &state.Sprite{Texture: "player"},
			}
		}},
		Archetype{Name: TypeWall, Template: func() *state.Entity {
			return &state.Entity{
				Shape:            shape(geometry.Box(32, 32)),
				Collider:         &state.Collider{IsStatic: true, Layer: LayerWorld},
				DamageDetectable: &state.Detectable{Layer: LayerWorld, Labels: []string{"wall"}},
				Sprite:           &state.Sprite{Texture: "wall"},
			}
		}},
		Archetype{Name: TypeEnemy, Template: func() *state.Entity {
			profile := state.DefaultSteerProfile()
			profile.Separation = 0.5
			profile.SeparationRadius = 32
			profile.Arrive = 1
			profile.ArriveRadius = 48
			return &state.Entity{
				Tags:             []string{"enemy"},
				Shape:            shape(geometry.Circle(10)),
				Collider:         &state.Collider{Layer: LayerEnemy},
				Detect:           &state.Detect{LayerMask: LayerPlayer},
				DamageDetectable: &state.Detectable{Layer: LayerEnemy, Labels: []string{"enemy"}},
				Motion: &state.Motion{
					Mode:          state.MotionSteerFollow,
					Speed:         60,
					StopDistance:  16,
					Acceleration:  240,
					Deceleration:  480,
					StuckDuration: 1,
					Target:        state.TargetSpec{Tag: state.TagPlayer},
				},
				SteerProfile: &profile,
				Sprite:       &state.Sprite{Texture: "slime"},
			}
		}},
		Archetype{Name: TypeFollower, Template: func() *state.Entity {
			return &state.Entity{
				Tags:       []string{"follower"},
				Persistent: true,
				Shape:      shape(geometry.Circle(6)),
				Motion: &state.Motion{
					Mode:         state.MotionFollow,
					Speed:        90,
					StopDistance: 20,
					DeadZoneAxis: state.DeadZone{X: 24, Y: 24},
					Target:       state.TargetSpec{Tag: state.TagPlayer},
					Wave:         &state.WaveParams{Amplitude: 2, Frequency: 0.5},
				},
				Sprite: &state.Sprite{Texture: "wisp"},
			}
		}},
		Archetype{Name: TypeBullet, Template: func() *state.Entity {
			return &state.Entity{
				Tags:  []string{"projectile"},
				Shape: shape(geometry.Circle(2)),
				Motion: &state.Motion{
					Mode:  state.MotionLine,
					Speed: 600,
					Line:  &state.LineParams{Direction: geometry.V(1, 0), Local: true},
				},
				DamageDetect: &state.Detect{
					LayerMask:      LayerWorld | LayerEnemy,
					CCDMinDistance: 4,
					ResultMode:     state.ResultModeLite,
				},
				Sprite: &state.Sprite{Texture: "bullet"},
			}
		}},
		Archetype{Name: TypePortal, Template: func() *state.Entity {
			return &state.Entity{
				Shape:        shape(geometry.Box(32, 32)),
				PortalDetect: &state.Detect{LayerMask: LayerPlayer, ResultMode: state.ResultModeLite},
				Portal:       &state.Portal{},
				Sprite:       &state.Sprite{Texture: "portal"},
			}
		}},
		Archetype{Name: TypeScenery, Template: func() *state.Entity {
			return &state.Entity{Sprite: &state.Sprite{}}
		}},
		Archetype{Name: TypeEntry, Template: func() *state.Entity {
			return &state.Entity{Entry: &state.EntryPoint{}}
		}},
	}
}
