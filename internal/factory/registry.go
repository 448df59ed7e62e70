// Package factory turns bundle records into entities and back. Each entity
// type is owned by one Definition; the registry only dispatches.
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/state"
)

var (
	ErrUnknownType     = errors.New("factory: unknown entity type")
	ErrDuplicateType   = errors.New("factory: duplicate entity type")
	ErrNotSerializable = errors.New("factory: entity is not serializable")
)

// Definition creates and serializes one entity type.
type Definition interface {
	Type() string
	Create(data json.RawMessage) (*state.Entity, error)
	Serialize(e *state.Entity) (json.RawMessage, error)
}

// Registry maps entity types to their definitions.
type Registry struct {
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Default returns a registry holding every built-in archetype.
func Default() *Registry {
	r := NewRegistry()
	for _, def := range Archetypes() {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds def. Types are unique and never empty.
func (r *Registry) Register(def Definition) error {
	if def == nil || strings.TrimSpace(def.Type()) == "" {
		return fmt.Errorf("%w: empty type", ErrUnknownType)
	}
	if _, exists := r.defs[def.Type()]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, def.Type())
	}
	r.defs[def.Type()] = def
	return nil
}

// Types lists the registered types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Has reports whether entityType is registered.
func (r *Registry) Has(entityType string) bool {
	_, ok := r.defs[entityType]
	return ok
}

// Create builds the entity for record. The result is not yet in any world.
func (r *Registry) Create(record bundle.EntityRecord) (*state.Entity, error) {
	def, ok := r.defs[record.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, record.Type)
	}
	e, err := def.Create(record.Data)
	if err != nil {
		return nil, fmt.Errorf("factory: create %s: %w", record.Type, err)
	}
	e.Type = record.Type
	return e, nil
}

// Serialize produces the record for e. Scene config and the global entity
// live outside the record list.
func (r *Registry) Serialize(e *state.Entity) (bundle.EntityRecord, error) {
	if e == nil || e.SceneConfig != nil || e.GlobalManager != nil {
		return bundle.EntityRecord{}, ErrNotSerializable
	}
	def, ok := r.defs[e.Type]
	if !ok {
		return bundle.EntityRecord{}, fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	data, err := def.Serialize(e)
	if err != nil {
		return bundle.EntityRecord{}, fmt.Errorf("factory: serialize %s: %w", e.Type, err)
	}
	return bundle.EntityRecord{Type: e.Type, Data: data}, nil
}
