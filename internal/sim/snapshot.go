package sim

import (
	"sync"
	"time"

	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/scene"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
)

// DebugShape is the broadcast view of one collider or sensor.
type DebugShape struct {
	ID       state.EntityID `json:"id"`
	Type     string         `json:"type"`
	Position geometry.Vec2  `json:"position"`
	Shape    geometry.Shape `json:"shape"`
	Static   bool           `json:"static,omitempty"`
	Trigger  bool           `json:"trigger,omitempty"`
	Status   string         `json:"status,omitempty"`
}

// Snapshot is an immutable copy of the world for readers off the tick
// goroutine.
type Snapshot struct {
	Tick          uint64       `json:"tick"`
	MapID         string       `json:"mapId"`
	State         string       `json:"state"`
	Transitioning bool         `json:"transitioning"`
	Entities      int          `json:"entities"`
	CapturedAt    time.Time    `json:"capturedAt"`
	Shapes        []DebugShape `json:"shapes"`
}

func captureSnapshot(w *world.World, mgr *scene.Manager, now time.Time) Snapshot {
	snap := Snapshot{
		Tick:          w.Tick(),
		MapID:         mgr.CurrentMap(),
		State:         mgr.State().String(),
		Transitioning: mgr.Transitioning(),
		Entities:      w.Len(),
		CapturedAt:    now,
		Shapes:        make([]DebugShape, 0, w.Len()),
	}
	w.Each(func(e *state.Entity) {
		if e.Shape == nil || e.Transform == nil {
			return
		}
		shape := DebugShape{
			ID:       e.ID,
			Type:     e.Type,
			Position: e.Transform.Position,
			Shape:    *e.Shape,
		}
		if e.Shape.Segment != nil {
			segment := *e.Shape.Segment
			shape.Shape.Segment = &segment
		}
		if e.Collider != nil {
			shape.Static = e.Collider.IsStatic
			shape.Trigger = e.Collider.IsTrigger
		}
		if e.Motion != nil {
			shape.Status = string(e.Motion.Runtime.Status)
		}
		snap.Shapes = append(snap.Shapes, shape)
	})
	return snap
}

type snapshotStore struct {
	mu   sync.RWMutex
	last Snapshot
}

func (s *snapshotStore) store(snap Snapshot) {
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}

// load hands out the stored value. Shapes is never written after store, so
// sharing the slice is safe.
func (s *snapshotStore) load() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
