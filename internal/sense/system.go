// Package sense runs the three detection channels. Each sensor keeps two hit
// sets: after a step LastHits holds the current members and ActiveHits is an
// empty buffer ready for the next tick, so enter and exit fall out of a set
// difference without allocating.
package sense

import (
	"context"
	"sort"

	"glade-runner/server/internal/collision"
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/spatial"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
	"glade-runner/server/logging/simulation"
)

// Channel names a detection layer.
type Channel string

const (
	ChannelGeneric Channel = "generic"
	ChannelDamage  Channel = "damage"
	ChannelPortal  Channel = "portal"
)

// Channels lists every channel in processing order.
var Channels = []Channel{ChannelGeneric, ChannelDamage, ChannelPortal}

// EventKind distinguishes enter from exit.
type EventKind string

const (
	Enter EventKind = "enter"
	Exit  EventKind = "exit"
)

// Event is one membership change of a sensor's hit set.
type Event struct {
	Channel Channel        `json:"channel"`
	Kind    EventKind      `json:"kind"`
	Sensor  state.EntityID `json:"sensor"`
	Target  state.EntityID `json:"target"`
	Tick    uint64         `json:"tick"`
}

// Sensor returns the query side of channel c on e.
func Sensor(e *state.Entity, c Channel) *state.Detect {
	switch c {
	case ChannelGeneric:
		return e.Detect
	case ChannelDamage:
		return e.DamageDetect
	case ChannelPortal:
		return e.PortalDetect
	}
	return nil
}

// Identity returns the identity side of channel c on e.
func Identity(e *state.Entity, c Channel) *state.Detectable {
	switch c {
	case ChannelGeneric:
		return e.Detectable
	case ChannelDamage:
		return e.DamageDetectable
	case ChannelPortal:
		return e.PortalDetectable
	}
	return nil
}

// System evaluates every sensor against every detectable once per tick.
type System struct {
	world     *world.World
	publisher logging.Publisher
	grid      *spatial.Grid
	events    []Event
}

// NewSystem binds the system to a world. cellSize tunes the broad phase.
func NewSystem(w *world.World, publisher logging.Publisher, cellSize float64) *System {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &System{world: w, publisher: publisher, grid: spatial.NewGrid(cellSize)}
}

var pointShape = geometry.Point()

func shapeOf(e *state.Entity) *geometry.Shape {
	if e.Shape != nil {
		return e.Shape
	}
	return &pointShape
}

// Step runs all channels and returns the enter/exit events sorted by channel,
// sensor and target. The returned slice is reused by the next call.
func (s *System) Step(tick uint64) []Event {
	s.events = s.events[:0]
	for _, channel := range Channels {
		s.stepChannel(tick, channel)
	}
	sort.SliceStable(s.events, func(i, j int) bool {
		a, b := s.events[i], s.events[j]
		if a.Channel != b.Channel {
			return channelRank(a.Channel) < channelRank(b.Channel)
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		return a.Target < b.Target
	})
	for _, event := range s.events {
		simulation.SensorChanged(context.Background(), s.publisher, tick, event.Kind == Enter,
			logging.EntityID(uint64(event.Sensor), logging.EntityKindEntity),
			logging.EntityID(uint64(event.Target), logging.EntityKindEntity),
			simulation.SensorPayload{Channel: string(event.Channel)})
	}
	return s.events
}

func channelRank(c Channel) int {
	for i, candidate := range Channels {
		if candidate == c {
			return i
		}
	}
	return len(Channels)
}

func (s *System) stepChannel(tick uint64, channel Channel) {
	s.grid.Reset()
	targets := 0
	s.world.Each(func(e *state.Entity) {
		if Identity(e, channel) == nil || e.Transform == nil {
			return
		}
		s.grid.Upsert(e.ID, shapeOf(e).Bounds(e.Transform.Position))
		targets++
	})

	s.world.Each(func(sensor *state.Entity) {
		detect := Sensor(sensor, channel)
		if detect == nil || sensor.Shape == nil || sensor.Transform == nil {
			return
		}
		detect.EnsureBuffers()
		detect.Results = detect.Results[:0]
		detect.Entered = detect.Entered[:0]
		detect.Exited = detect.Exited[:0]

		if targets > 0 {
			s.collect(sensor, detect, channel)
		}

		for _, id := range detect.ActiveHits.Sorted() {
			if !detect.LastHits.Has(id) {
				detect.Entered = append(detect.Entered, id)
				s.events = append(s.events, Event{Channel: channel, Kind: Enter, Sensor: sensor.ID, Target: id, Tick: tick})
			}
		}
		for _, id := range detect.LastHits.Sorted() {
			if !detect.ActiveHits.Has(id) {
				detect.Exited = append(detect.Exited, id)
				s.events = append(s.events, Event{Channel: channel, Kind: Exit, Sensor: sensor.ID, Target: id, Tick: tick})
			}
		}
		detect.Rotate()
	})
}

func (s *System) collect(sensor *state.Entity, detect *state.Detect, channel Channel) {
	t := sensor.Transform
	from := sensor.Shape.Center(t.Previous)
	to := sensor.Shape.Center(t.Position)
	radius := sensor.Shape.EffectiveRadius() + detect.CCDBuffer
	sweep := detect.CCDEnabled || (detect.CCDMinDistance > 0 && t.Moved() > detect.CCDMinDistance)

	area := sensor.Shape.Bounds(t.Position)
	if sweep {
		path := geometry.BoundsOf([]geometry.Vec2{from, to}).Inflate(radius)
		area = unionRect(area, path)
	}

	for _, id := range s.grid.Query(area) {
		if id == sensor.ID {
			continue
		}
		target := s.world.Get(id)
		if target == nil {
			continue
		}
		identity := Identity(target, channel)
		if identity == nil || identity.Layer&detect.LayerMask == 0 {
			continue
		}
		shape := shapeOf(target)
		hit := collision.Overlaps(sensor.Shape, t, shape, target.Transform)
		if !hit && sweep {
			hit = collision.SweepOverlaps(from, to, radius, shape, target.Transform)
		}
		if !hit {
			continue
		}
		detect.ActiveHits[id] = struct{}{}
		detect.Results = append(detect.Results, resultFor(target, identity, detect.ResultMode))
	}
}

func resultFor(target *state.Entity, identity *state.Detectable, mode state.ResultMode) state.Hit {
	if mode != state.ResultModeLite {
		return state.Hit{ID: target.ID}
	}
	return state.Hit{
		ID:     target.ID,
		UUID:   target.UUID,
		Type:   target.Type,
		Labels: append([]string(nil), identity.Labels...),
	}
}

func unionRect(a, b geometry.Rect) geometry.Rect {
	return geometry.BoundsOf([]geometry.Vec2{
		{X: a.X, Y: a.Y}, {X: a.MaxX(), Y: a.MaxY()},
		{X: b.X, Y: b.Y}, {X: b.MaxX(), Y: b.MaxY()},
	})
}

// ResetAll clears the runtime hit state of every sensor, used after a map
// change so travellers do not report stale exits.
func ResetAll(w *world.World) {
	w.Each(func(e *state.Entity) {
		for _, channel := range Channels {
			Sensor(e, channel).ResetRuntime()
		}
	})
}
