// Package world owns the entity arena for the active map plus the global
// singleton that survives every map change.
package world

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"glade-runner/server/internal/state"
	"glade-runner/server/logging"
	"glade-runner/server/logging/lifecycle"
)

// Deps bundles runtime dependencies required to construct a World instance.
type Deps struct {
	Publisher logging.Publisher
	RNG       RNGFactory
}

// World is a flat arena keyed by EntityID. Iteration follows insertion order
// so every system sees entities in the same sequence each tick. A World is
// owned by the tick goroutine and is not safe for concurrent use.
type World struct {
	config     Config
	publisher  logging.Publisher
	rngFactory RNGFactory

	entities map[state.EntityID]*state.Entity
	order    []state.EntityID
	nextID   state.EntityID
	tick     uint64

	global        *state.Entity
	sceneConfigID state.EntityID
}

// New constructs an empty world.
func New(cfg Config, deps Deps) (*World, error) {
	factory := deps.RNG
	if factory == nil {
		factory = NewDeterministicRNG
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &World{
		config:     cfg.normalized(),
		publisher:  publisher,
		rngFactory: factory,
		entities:   make(map[state.EntityID]*state.Entity),
	}, nil
}

func (w *World) Config() Config {
	return w.config
}

// RNG returns a deterministic generator for the labelled subsystem.
func (w *World) RNG(label string) *rand.Rand {
	return w.rngFactory(w.config.Seed, label)
}

// SetTick stamps subsequent lifecycle events.
func (w *World) SetTick(tick uint64) {
	w.tick = tick
}

func (w *World) Tick() uint64 {
	return w.tick
}

func (w *World) Publisher() logging.Publisher {
	return w.publisher
}

func (w *World) allocate(e *state.Entity) {
	w.nextID++
	e.ID = w.nextID
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
}

// Add validates e and inserts it into the arena.
func (w *World) Add(e *state.Entity) (state.EntityID, error) {
	if e == nil {
		return 0, fmt.Errorf("%w: nil entity", ErrUnknownEntity)
	}
	if e.GlobalManager != nil {
		return 0, w.reject(e, ErrGlobalInArena)
	}
	if e.SceneConfig != nil && w.sceneConfigID != 0 {
		return 0, w.reject(e, ErrDuplicateSceneConfig)
	}
	if e.Shape != nil {
		if err := e.Shape.Validate(); err != nil {
			return 0, w.reject(e, fmt.Errorf("%w: %v", ErrInvalidShape, err))
		}
	}
	if e.Parent != nil {
		parent, err := w.resolveParent(e.Parent)
		if err != nil {
			return 0, w.reject(e, err)
		}
		e.Parent.ID = parent.ID
		e.Parent.UUID = parent.UUID
	}

	w.allocate(e)
	w.entities[e.ID] = e
	w.order = append(w.order, e.ID)
	if e.SceneConfig != nil {
		w.sceneConfigID = e.ID
	}

	lifecycle.EntityAdded(context.Background(), w.publisher, w.tick, refOf(e), payloadOf(e))
	return e.ID, nil
}

func (w *World) resolveParent(p *state.Parent) (*state.Entity, error) {
	if p.ID != 0 {
		if parent, ok := w.entities[p.ID]; ok {
			return parent, nil
		}
		return nil, fmt.Errorf("%w: parent %d", ErrUnknownEntity, p.ID)
	}
	if parent := w.FindByUUID(p.UUID); parent != nil && parent != w.global {
		return parent, nil
	}
	return nil, fmt.Errorf("%w: parent %q", ErrUnknownEntity, p.UUID)
}

// SetGlobal installs the world singleton. It can only be set once and is
// never returned by Entities or removed by Clear.
func (w *World) SetGlobal(e *state.Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil global", ErrUnknownEntity)
	}
	if w.global != nil {
		return w.reject(e, ErrGlobalAlreadySet)
	}
	if e.GlobalManager == nil {
		e.GlobalManager = &state.GlobalManager{}
	}
	w.allocate(e)
	w.global = e
	return nil
}

// Global returns the singleton, or nil before SetGlobal.
func (w *World) Global() *state.Entity {
	return w.global
}

// GlobalManager is a shortcut for Global().GlobalManager.
func (w *World) GlobalManager() *state.GlobalManager {
	if w.global == nil {
		return nil
	}
	return w.global.GlobalManager
}

// Remove deletes an arena entity. Children are re-rooted in place.
func (w *World) Remove(id state.EntityID) error {
	if w.global != nil && id == w.global.ID {
		lifecycle.RemovalRejected(context.Background(), w.publisher, w.tick, refOf(w.global), lifecycle.RejectionPayload{Reason: "global entity"})
		return fmt.Errorf("%w: %d", ErrProtectedEntity, id)
	}
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	w.detach(id)
	lifecycle.EntityRemoved(context.Background(), w.publisher, w.tick, refOf(e), payloadOf(e))
	return nil
}

func (w *World) detach(id state.EntityID) {
	delete(w.entities, id)
	if idx := slices.Index(w.order, id); idx >= 0 {
		w.order = slices.Delete(w.order, idx, idx+1)
	}
	if w.sceneConfigID == id {
		w.sceneConfigID = 0
	}
	for _, other := range w.entities {
		if other.Parent != nil && other.Parent.ID == id {
			other.Parent = nil
		}
	}
}

// Clear removes every arena entity for which keep returns false and returns
// the survivors in arena order. A nil keep removes everything.
func (w *World) Clear(keep func(*state.Entity) bool) []*state.Entity {
	kept := make([]*state.Entity, 0)
	removed := 0
	for _, id := range slices.Clone(w.order) {
		e := w.entities[id]
		if keep != nil && keep(e) {
			kept = append(kept, e)
			continue
		}
		w.detach(id)
		removed++
	}
	lifecycle.WorldCleared(context.Background(), w.publisher, w.tick, lifecycle.WorldClearedPayload{Removed: removed, Kept: len(kept)})
	return kept
}

// SetParent links child under parent. A zero parent detaches the child.
func (w *World) SetParent(child, parent state.EntityID) error {
	c, ok := w.entities[child]
	if !ok {
		return fmt.Errorf("%w: child %d", ErrUnknownEntity, child)
	}
	if parent == 0 {
		c.Parent = nil
		return nil
	}
	p, ok := w.entities[parent]
	if !ok {
		return fmt.Errorf("%w: parent %d", ErrUnknownEntity, parent)
	}
	for cursor := p; cursor != nil; {
		if cursor.ID == child {
			return w.reject(c, fmt.Errorf("%w: %d under %d", ErrCyclicParent, child, parent))
		}
		if cursor.Parent == nil {
			break
		}
		cursor = w.entities[cursor.Parent.ID]
	}
	c.Parent = &state.Parent{ID: p.ID, UUID: p.UUID}
	return nil
}

// ResolveTransforms moves every child to its parent's position plus its
// local offset. Parents resolve before their children.
func (w *World) ResolveTransforms() {
	resolved := make(map[state.EntityID]bool, len(w.order))
	var resolve func(e *state.Entity)
	resolve = func(e *state.Entity) {
		if resolved[e.ID] {
			return
		}
		resolved[e.ID] = true
		if e.Parent == nil || e.Transform == nil {
			return
		}
		parent, ok := w.entities[e.Parent.ID]
		if !ok || parent.Transform == nil {
			return
		}
		resolve(parent)
		var offset state.LocalTransform
		if e.LocalTransform != nil {
			offset = *e.LocalTransform
		}
		e.Transform.Position = parent.Transform.Position.Add(offset.Offset)
	}
	for _, id := range w.order {
		resolve(w.entities[id])
	}
}

func (w *World) reject(e *state.Entity, err error) error {
	lifecycle.InvariantViolated(context.Background(), w.publisher, w.tick, refOf(e), lifecycle.RejectionPayload{Reason: err.Error()})
	return err
}

// Get returns the arena entity or the global entity with id.
func (w *World) Get(id state.EntityID) *state.Entity {
	if w.global != nil && w.global.ID == id {
		return w.global
	}
	return w.entities[id]
}

// Entities returns arena entities in insertion order.
func (w *World) Entities() []*state.Entity {
	out := make([]*state.Entity, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.entities[id])
	}
	return out
}

// Each calls fn for every arena entity in insertion order.
func (w *World) Each(fn func(*state.Entity)) {
	for _, id := range w.order {
		fn(w.entities[id])
	}
}

func (w *World) Len() int {
	return len(w.order)
}

func (w *World) FindByTag(tag string) []*state.Entity {
	var out []*state.Entity
	w.Each(func(e *state.Entity) {
		if e.HasTag(tag) {
			out = append(out, e)
		}
	})
	return out
}

// FirstByTag returns the earliest entity carrying tag.
func (w *World) FirstByTag(tag string) *state.Entity {
	for _, id := range w.order {
		if e := w.entities[id]; e.HasTag(tag) {
			return e
		}
	}
	return nil
}

func (w *World) FindByUUID(id string) *state.Entity {
	if id == "" {
		return nil
	}
	if w.global != nil && w.global.UUID == id {
		return w.global
	}
	for _, eid := range w.order {
		if e := w.entities[eid]; e.UUID == id {
			return e
		}
	}
	return nil
}

func (w *World) FindByType(entityType string) []*state.Entity {
	var out []*state.Entity
	w.Each(func(e *state.Entity) {
		if e.Type == entityType {
			out = append(out, e)
		}
	})
	return out
}

// FindEntry returns the entry point with id. An empty id matches the first
// entry point.
func (w *World) FindEntry(id string) *state.Entity {
	for _, eid := range w.order {
		e := w.entities[eid]
		if e.Entry == nil {
			continue
		}
		if id == "" || e.Entry.ID == id {
			return e
		}
	}
	return nil
}

// SceneConfig returns the entity carrying the scene config, or nil.
func (w *World) SceneConfig() *state.Entity {
	if w.sceneConfigID == 0 {
		return nil
	}
	return w.entities[w.sceneConfigID]
}

func refOf(e *state.Entity) logging.EntityRef {
	kind := logging.EntityKindEntity
	if e.HasTag(state.TagPlayer) {
		kind = logging.EntityKindPlayer
	}
	if e.GlobalManager != nil {
		kind = logging.EntityKindWorld
	}
	return logging.EntityID(uint64(e.ID), kind)
}

func payloadOf(e *state.Entity) lifecycle.EntityPayload {
	return lifecycle.EntityPayload{UUID: e.UUID, Type: e.Type, Name: e.Name}
}
