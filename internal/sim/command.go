package sim

import (
	"errors"
	"time"

	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
)

// CommandType enumerates the supported simulation commands.
type CommandType string

const (
	CommandDeleteEntity CommandType = "delete_entity"
	CommandSpawnEntity  CommandType = "spawn_entity"
	CommandSwitchMap    CommandType = "switch_map"
)

var (
	ErrQueueFull  = errors.New("sim: command queue full")
	ErrQueueLimit = errors.New("sim: per-actor command limit reached")
)

func errQueue(reason string) error {
	if reason == CommandRejectQueueLimit {
		return ErrQueueLimit
	}
	return ErrQueueFull
}

// DeleteCommand removes one entity from the arena.
type DeleteCommand struct {
	ID state.EntityID `json:"id"`
}

// SpawnCommand builds an entity from a bundle record. Position, when set,
// overrides the record's transform.
type SpawnCommand struct {
	Record   bundle.EntityRecord `json:"record"`
	Position *geometry.Vec2      `json:"position,omitempty"`
}

// SwitchMapCommand asks the scene manager for a map change.
type SwitchMapCommand struct {
	MapID   string `json:"mapId"`
	EntryID string `json:"entryId,omitempty"`
}

// Command represents an intent captured for processing on the next tick.
type Command struct {
	OriginTick uint64            `json:"originTick"`
	ActorID    string            `json:"actorId"`
	Type       CommandType       `json:"type"`
	IssuedAt   time.Time         `json:"issuedAt"`
	Delete     *DeleteCommand    `json:"delete,omitempty"`
	Spawn      *SpawnCommand     `json:"spawn,omitempty"`
	SwitchMap  *SwitchMapCommand `json:"switchMap,omitempty"`

	// Reply, when set, receives exactly one outcome. It must be buffered.
	// For switch_map the outcome arrives once the transition finishes.
	Reply chan<- error `json:"-"`
}

func (c Command) reply(err error) {
	if c.Reply != nil {
		c.Reply <- err
	}
}
