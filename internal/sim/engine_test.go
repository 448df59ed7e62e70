package sim

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"glade-runner/server/internal/assets"
	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/scene"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging/simulation"
	"glade-runner/server/logging/sinks"
)

const stepDelta = 0.1

func record(entityType, data string) bundle.EntityRecord {
	return bundle.EntityRecord{Type: entityType, Data: json.RawMessage(data)}
}

func fixtures() bundle.MapSource {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return bundle.MapSource{
		"meadow": bundle.New(state.SceneConfig{MapID: "meadow", Width: 640, Height: 480}, []bundle.EntityRecord{
			record("player", `{"uuid": "hero", "transform": {"position": {"x": 50, "y": 50}}}`),
			record("wall", `{"transform": {"position": {"x": 200, "y": 200}}}`),
			record("portal", `{"transform": {"position": {"x": 600, "y": 240}}, "portal": {"targetMap": "cave", "entryId": "door"}}`),
		}, now),
		"cave": bundle.New(state.SceneConfig{MapID: "cave", Width: 320, Height: 240}, []bundle.EntityRecord{
			record("wall", `{"transform": {"position": {"x": 250, "y": 200}}}`),
			record("entry", `{"transform": {"position": {"x": 40, "y": 40}}, "entry": {"id": "door"}}`),
		}, now),
	}
}

// gatedLoader blocks preloads while hold is set until release closes.
type gatedLoader struct {
	hold    atomic.Bool
	release chan struct{}
}

func (g *gatedLoader) LoadAssets(ctx context.Context, ids []string, onProgress assets.Progress) error {
	if !g.hold.Load() {
		return nil
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type engineHarness struct {
	engine *Engine
	world  *world.World
	memory *sinks.MemorySink
	tick   uint64
}

func newEngine(t *testing.T, loader assets.Loader) *engineHarness {
	t.Helper()
	memory := sinks.NewMemorySink()
	w, err := world.New(world.Config{}, world.Deps{Publisher: memory})
	if err != nil {
		t.Fatalf("world.New returned error: %v", err)
	}
	engine, err := NewEngine(Config{CellSize: 64}, Deps{World: w, Static: fixtures(), Assets: loader})
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}
	t.Cleanup(engine.Close)
	if err := engine.Bootstrap(context.Background(), "meadow"); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	return &engineHarness{engine: engine, world: w, memory: memory}
}

func (h *engineHarness) step(cmds ...Command) StepResult {
	h.tick++
	return h.engine.Step(context.Background(), h.tick, stepDelta, cmds)
}

func (h *engineHarness) stepUntil(t *testing.T, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.step()
		if done() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached by tick %d", h.tick)
}

func spawnBullet(x, y float64) Command {
	pos := geometry.V(x, y)
	return Command{Type: CommandSpawnEntity, Spawn: &SpawnCommand{Record: record("bullet", `{}`), Position: &pos}}
}

func TestStepMovesThenDetects(t *testing.T) {
	h := newEngine(t, nil)
	h.step(spawnBullet(100, 300))
	bullets := h.world.FindByType("bullet")
	if len(bullets) != 1 {
		t.Fatalf("expected one bullet, got %d", len(bullets))
	}
	bullet := bullets[0]
	if bullet.Transform.Position != geometry.V(160, 300) {
		t.Fatalf("expected bullet to advance in its spawn tick, got %+v", bullet.Transform.Position)
	}

	bullet.Transform.SetPosition(geometry.V(150, 200))
	result := h.step()
	if bullet.Transform.Previous != geometry.V(150, 200) {
		t.Fatalf("expected previous position captured before motion, got %+v", bullet.Transform.Previous)
	}
	if h.world.Tick() != result.Tick || result.Tick != 2 {
		t.Fatalf("expected world tick 2, got world=%d result=%d", h.world.Tick(), result.Tick)
	}
	wall := h.world.FindByType("wall")[0]
	if !bullet.DamageDetect.LastHits.Has(wall.ID) {
		t.Fatalf("expected swept bullet to hit the wall, events %+v", result.Events)
	}
}

func TestPortalEnterRequestsSwitch(t *testing.T) {
	h := newEngine(t, nil)
	hero := h.world.FindByUUID("hero")
	hero.Transform.SetPosition(geometry.V(600, 240))

	h.step()
	if got := h.engine.Scene().State(); got != scene.StateRequested {
		t.Fatalf("expected pending request after portal enter, got %s", got)
	}
	h.stepUntil(t, func() bool { return h.engine.Scene().CurrentMap() == "cave" })

	hero = h.world.FindByUUID("hero")
	if hero == nil {
		t.Fatalf("expected player to travel")
	}
	if hero.Transform.Position != geometry.V(40, 40) {
		t.Fatalf("expected player at the door entry, got %+v", hero.Transform.Position)
	}
	if snap := h.engine.Snapshot(); snap.MapID != "cave" || snap.Transitioning {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestSystemsPauseWhileTransitioning(t *testing.T) {
	loader := &gatedLoader{release: make(chan struct{})}
	h := newEngine(t, loader)
	loader.hold.Store(true)

	h.step(Command{Type: CommandSwitchMap, SwitchMap: &SwitchMapCommand{MapID: "cave"}})
	if !h.engine.Scene().Transitioning() {
		t.Fatalf("expected transition to be in flight")
	}

	reply := make(chan error, 1)
	spawn := spawnBullet(100, 100)
	spawn.Reply = reply
	result := h.step(spawn)
	if err := <-reply; err != nil {
		t.Fatalf("expected commands to run during a transition, got %v", err)
	}
	if !result.Transitioning || result.Events != nil {
		t.Fatalf("expected gated step, got %+v", result)
	}
	bullet := h.world.FindByType("bullet")[0]
	h.step()
	if bullet.Transform.Position != geometry.V(100, 100) {
		t.Fatalf("expected bullet frozen while transitioning, got %+v", bullet.Transform.Position)
	}
	if !h.engine.Snapshot().Transitioning {
		t.Fatalf("expected snapshot to report the transition")
	}

	close(loader.release)
	h.stepUntil(t, func() bool { return !h.engine.Scene().Transitioning() })
	if bullet.Transform.Position.X <= 100 {
		t.Fatalf("expected bullet to move once the map is live, got %+v", bullet.Transform.Position)
	}
}

func TestSwitchMapReplyWaitsForCompletion(t *testing.T) {
	h := newEngine(t, nil)
	reply := make(chan error, 1)
	h.step(Command{Type: CommandSwitchMap, SwitchMap: &SwitchMapCommand{MapID: "void"}, Reply: reply})
	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-reply:
			if !errors.Is(err, bundle.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("reply never arrived")
		default:
			h.step()
		}
	}
}

func TestDeleteRejectsProtectedAndMissingEntities(t *testing.T) {
	cases := []struct {
		name string
		id   func(w *world.World) state.EntityID
		want error
	}{
		{name: "global", id: func(w *world.World) state.EntityID { return w.Global().ID }, want: ErrProtectedEntity},
		{name: "scene config", id: func(w *world.World) state.EntityID { return w.SceneConfig().ID }, want: ErrProtectedEntity},
		{name: "missing", id: func(*world.World) state.EntityID { return 9999 }, want: ErrEntityNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newEngine(t, nil)
			reply := make(chan error, 1)
			result := h.step(Command{Type: CommandDeleteEntity, Delete: &DeleteCommand{ID: tc.id(h.world)}, Reply: reply})
			if err := <-reply; !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if result.Rejected != 1 {
				t.Fatalf("expected one rejection, got %d", result.Rejected)
			}
			if got := len(h.memory.OfType(simulation.EventCommandRejected)); got != 1 {
				t.Fatalf("expected one rejection event, got %d", got)
			}
		})
	}
}

func TestDeleteWallRefreshesObstacles(t *testing.T) {
	h := newEngine(t, nil)
	wall := h.world.FindByType("wall")[0]
	if got := h.engine.motion.Obstacles().Len(); got != 1 {
		t.Fatalf("expected one obstacle, got %d", got)
	}
	reply := make(chan error, 1)
	h.step(Command{Type: CommandDeleteEntity, Delete: &DeleteCommand{ID: wall.ID}, Reply: reply})
	if err := <-reply; err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if h.world.Get(wall.ID) != nil {
		t.Fatalf("expected wall removed")
	}
	if got := h.engine.motion.Obstacles().Len(); got != 0 {
		t.Fatalf("expected obstacle index rebuilt without the wall, got %d", got)
	}
}

func TestUnknownCommandAndMissingPayload(t *testing.T) {
	h := newEngine(t, nil)
	first := make(chan error, 1)
	second := make(chan error, 1)
	h.step(
		Command{Type: "teleport", Reply: first},
		Command{Type: CommandSpawnEntity, Reply: second},
	)
	if err := <-first; !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}
	if err := <-second; !errors.Is(err, ErrMissingPayload) {
		t.Fatalf("expected ErrMissingPayload, got %v", err)
	}
}
