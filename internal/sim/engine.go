// Package sim drives the simulation: it applies queued commands, pumps the
// scene manager and runs the gameplay systems in a fixed order each tick.
package sim

import (
	"context"
	"errors"
	"fmt"

	"glade-runner/server/internal/assets"
	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/factory"
	"glade-runner/server/internal/motion"
	"glade-runner/server/internal/physics"
	"glade-runner/server/internal/scene"
	"glade-runner/server/internal/sense"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/telemetry"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
	"glade-runner/server/logging/simulation"
)

var (
	ErrUnknownCommand   = errors.New("sim: unknown command")
	ErrMissingPayload   = errors.New("sim: command payload missing")
	ErrProtectedEntity  = errors.New("sim: entity cannot be deleted")
	ErrEntityNotFound   = errors.New("sim: entity not found")
	ErrSpawnUnsupported = errors.New("sim: entity type cannot be spawned")
)

// Config tunes the gameplay systems.
type Config struct {
	CellSize          float64 `json:"cellSize" yaml:"cellSize"`
	PhysicsIterations int     `json:"physicsIterations" yaml:"physicsIterations"`
}

// Deps carries the engine's collaborators.
type Deps struct {
	World     *world.World
	Registry  *factory.Registry
	Static    bundle.StaticSource
	Store     bundle.Store
	Assets    assets.Loader
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// StepResult summarises one tick.
type StepResult struct {
	Tick          uint64
	Commands      int
	Rejected      int
	Transitioning bool
	Events        []sense.Event
	Physics       physics.Stats
}

// Engine owns the world on the tick goroutine.
type Engine struct {
	deps     Deps
	world    *world.World
	registry *factory.Registry
	scene    *scene.Manager
	motion   *motion.System
	physics  *physics.System
	sense    *sense.System

	snapshots snapshotStore
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.World == nil {
		return nil, errors.New("sim: world is required")
	}
	if deps.Registry == nil {
		deps.Registry = factory.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = deps.World.Publisher()
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NopMetrics()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock()
	}

	obstacles := motion.NewObstacleCache(deps.World, cfg.CellSize)
	e := &Engine{
		deps:     deps,
		world:    deps.World,
		registry: deps.Registry,
		motion:   motion.NewSystem(deps.World, obstacles, logging.WithFields(deps.Publisher, map[string]any{"system": "motion"})),
		physics:  physics.NewSystem(deps.World, obstacles, cfg.PhysicsIterations),
		sense:    sense.NewSystem(deps.World, logging.WithFields(deps.Publisher, map[string]any{"system": "sense"}), cfg.CellSize),
	}
	manager, err := scene.NewManager(scene.Deps{
		World:     deps.World,
		Registry:  deps.Registry,
		Static:    deps.Static,
		Store:     deps.Store,
		Assets:    deps.Assets,
		Publisher: deps.Publisher,
		Logger:    deps.Logger,
		Metrics:   deps.Metrics,
		Clock:     deps.Clock.Now,
		Reset:     e.resetCaches,
	})
	if err != nil {
		return nil, fmt.Errorf("sim: failed building scene manager: %w", err)
	}
	e.scene = manager
	return e, nil
}

func (e *Engine) Deps() Deps {
	return e.deps
}

func (e *Engine) World() *world.World {
	return e.world
}

func (e *Engine) Scene() *scene.Manager {
	return e.scene
}

// Bootstrap loads the first map and publishes the initial snapshot.
func (e *Engine) Bootstrap(ctx context.Context, mapID string) error {
	if err := e.scene.Bootstrap(ctx, mapID); err != nil {
		return err
	}
	e.resetCaches()
	e.publishSnapshot()
	return nil
}

func (e *Engine) resetCaches() {
	e.motion.Reset()
}

// Apply runs commands in order. Failures are reported per command and never
// stop the batch.
func (e *Engine) Apply(ctx context.Context, cmds []Command) int {
	rejected := 0
	for _, cmd := range cmds {
		if err := e.apply(cmd); err != nil {
			rejected++
			simulation.CommandRejected(ctx, e.deps.Publisher, e.world.Tick(),
				simulation.CommandRejectedPayload{Command: string(cmd.Type), Reason: err.Error()})
			cmd.reply(err)
		}
	}
	return rejected
}

func (e *Engine) apply(cmd Command) error {
	switch cmd.Type {
	case CommandDeleteEntity:
		if cmd.Delete == nil {
			return ErrMissingPayload
		}
		return e.deleteEntity(cmd)
	case CommandSpawnEntity:
		if cmd.Spawn == nil {
			return ErrMissingPayload
		}
		return e.spawnEntity(cmd)
	case CommandSwitchMap:
		if cmd.SwitchMap == nil {
			return ErrMissingPayload
		}
		done := e.scene.RequestSwitchMap(cmd.SwitchMap.MapID, cmd.SwitchMap.EntryID)
		if cmd.Reply != nil {
			go func() { cmd.Reply <- <-done }()
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

func (e *Engine) deleteEntity(cmd Command) error {
	id := cmd.Delete.ID
	target := e.world.Get(id)
	if target == nil {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}
	if target == e.world.Global() || target == e.world.SceneConfig() {
		return fmt.Errorf("%w: %d", ErrProtectedEntity, id)
	}
	obstacle := motion.IsObstacle(target)
	if err := e.world.Remove(id); err != nil {
		return err
	}
	if obstacle {
		e.motion.Obstacles().Reset()
	}
	cmd.reply(nil)
	return nil
}

func (e *Engine) spawnEntity(cmd Command) error {
	record := cmd.Spawn.Record
	if record.Type == scene.SceneEntityType {
		return fmt.Errorf("%w: %s", ErrSpawnUnsupported, record.Type)
	}
	entity, err := e.registry.Create(record)
	if err != nil {
		return err
	}
	if cmd.Spawn.Position != nil {
		if entity.Transform == nil {
			entity.Transform = &state.Transform{}
		}
		entity.Transform.SetPosition(*cmd.Spawn.Position)
	}
	if _, err := e.world.Add(entity); err != nil {
		return err
	}
	if motion.IsObstacle(entity) {
		e.motion.Obstacles().Reset()
	}
	cmd.reply(nil)
	return nil
}

// Step runs one tick. Commands and the scene manager always run; the
// gameplay systems pause while a transition is in flight.
func (e *Engine) Step(ctx context.Context, tick uint64, dt float64, cmds []Command) StepResult {
	e.world.SetTick(tick)
	result := StepResult{Tick: tick, Commands: len(cmds)}
	result.Rejected = e.Apply(ctx, cmds)
	e.scene.Pump(ctx)

	if e.scene.Transitioning() {
		result.Transitioning = true
		e.publishSnapshot()
		return result
	}

	e.world.Each(func(entity *state.Entity) {
		if entity.Transform != nil {
			entity.Transform.Previous = entity.Transform.Position
		}
	})
	e.motion.Step(dt)
	result.Physics = e.physics.Step()
	e.world.ResolveTransforms()
	result.Events = e.sense.Step(tick)
	e.portalIntent(result.Events)
	e.publishSnapshot()
	return result
}

// portalIntent requests a switch for the first portal a player entered.
func (e *Engine) portalIntent(events []sense.Event) {
	for _, ev := range events {
		if ev.Channel != sense.ChannelPortal || ev.Kind != sense.Enter {
			continue
		}
		target := e.world.Get(ev.Target)
		if target == nil || !target.HasTag(state.TagPlayer) {
			continue
		}
		portal := e.world.Get(ev.Sensor)
		if portal == nil || portal.Portal == nil || portal.Portal.TargetMap == "" {
			continue
		}
		e.deps.Logger.Printf("[portal] %s -> %s entry=%s", e.scene.CurrentMap(), portal.Portal.TargetMap, portal.Portal.EntryID)
		e.scene.RequestSwitchMap(portal.Portal.TargetMap, portal.Portal.EntryID)
		return
	}
}

// Snapshot returns the last published view. Safe for concurrent use.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshots.load()
}

func (e *Engine) publishSnapshot() {
	e.snapshots.store(captureSnapshot(e.world, e.scene, e.deps.Clock.Now()))
}

// Close stops the scene manager.
func (e *Engine) Close() {
	e.scene.Close()
}
