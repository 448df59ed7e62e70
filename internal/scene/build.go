package scene

import (
	"context"

	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/state"
	"glade-runner/server/logging"
	"glade-runner/server/logging/lifecycle"
)

// Capture serializes the live map. Persistent entities are left out because
// they travel with the player; entities of unknown type are skipped.
func (m *Manager) Capture() *bundle.Bundle {
	var config state.SceneConfig
	if cfg := m.world.SceneConfig(); cfg != nil {
		config = *cfg.SceneConfig
		config.Transitioning = false
	}
	records := make([]bundle.EntityRecord, 0, m.world.Len())
	m.world.Each(func(e *state.Entity) {
		if e.Persistent || e.SceneConfig != nil {
			return
		}
		record, err := m.registry.Serialize(e)
		if err != nil {
			m.skip(e, err)
			return
		}
		records = append(records, record)
	})
	return bundle.New(config, records, m.clock())
}

func (m *Manager) skip(e *state.Entity, err error) {
	m.metrics.Add(metricRecordsSkipped, 1)
	lifecycle.InvariantViolated(context.Background(), m.publisher, m.world.Tick(),
		logging.EntityID(uint64(e.ID), logging.EntityKindEntity), lifecycle.RejectionPayload{Reason: err.Error()})
}

type identity struct {
	entityType string
	name       string
}

// instantiate adds the scene config and every record of b to the world and
// returns how many entities were created. Persistent records that duplicate
// a traveller are skipped: same UUID, or same type and name. Parents resolve
// by UUID after every entity exists, so record order does not matter.
func (m *Manager) instantiate(b *bundle.Bundle, travellers []*state.Entity) int {
	config := b.Header.Config
	config.Transitioning = false
	scene := &state.Entity{Type: SceneEntityType, Name: config.MapID, SceneConfig: &config}
	if _, err := m.world.Add(scene); err != nil {
		m.logger.Printf("[scene] %s: scene config rejected: %v", config.MapID, err)
	}

	uuids := make(map[string]struct{}, len(travellers))
	kinds := make(map[identity]struct{}, len(travellers))
	for _, e := range travellers {
		if e.UUID != "" {
			uuids[e.UUID] = struct{}{}
		}
		kinds[identity{e.Type, e.Name}] = struct{}{}
	}

	type link struct {
		child  *state.Entity
		parent string
	}
	var links []link
	created := 0
	for _, record := range b.Entities {
		e, err := m.registry.Create(record)
		if err != nil {
			m.metrics.Add(metricRecordsSkipped, 1)
			m.logger.Printf("[scene] %s: skipping %s record: %v", config.MapID, record.Type, err)
			continue
		}
		if e.Persistent {
			_, sameUUID := uuids[e.UUID]
			_, sameKind := kinds[identity{e.Type, e.Name}]
			if sameUUID || sameKind {
				continue
			}
		}
		if e.Parent != nil {
			links = append(links, link{child: e, parent: e.Parent.UUID})
			e.Parent = nil
		}
		if _, err := m.world.Add(e); err != nil {
			m.metrics.Add(metricRecordsSkipped, 1)
			m.logger.Printf("[scene] %s: %s rejected: %v", config.MapID, record.Type, err)
			continue
		}
		created++
	}

	for _, l := range links {
		if l.child.ID == 0 {
			continue
		}
		parent := m.world.FindByUUID(l.parent)
		if parent == nil || parent == m.world.Global() {
			m.logger.Printf("[scene] %s: parent %q of %s not found", config.MapID, l.parent, l.child.UUID)
			continue
		}
		if err := m.world.SetParent(l.child.ID, parent.ID); err != nil {
			m.logger.Printf("[scene] %s: parent link rejected: %v", config.MapID, err)
		}
	}
	m.world.ResolveTransforms()
	return created
}

// snapToEntry moves the player onto the named entry point. An empty id
// leaves the player where it is.
func (m *Manager) snapToEntry(entryID string) {
	if entryID == "" {
		return
	}
	entry := m.world.FindEntry(entryID)
	if entry == nil || entry.Transform == nil {
		m.logger.Printf("[scene] entry point %q not found", entryID)
		return
	}
	player := m.world.FirstByTag(state.TagPlayer)
	if player == nil || player.Transform == nil {
		return
	}
	player.Transform.SetPosition(entry.Transform.Position)
	if player.Motion != nil {
		player.Motion.ResetRuntime()
	}
}
