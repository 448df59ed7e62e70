package scene

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"glade-runner/server/internal/assets"
	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/geometry"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/world"
	scenelog "glade-runner/server/logging/scene"
	"glade-runner/server/logging/sinks"
)

func record(entityType, data string) bundle.EntityRecord {
	return bundle.EntityRecord{Type: entityType, Data: json.RawMessage(data)}
}

func fixtures() bundle.MapSource {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return bundle.MapSource{
		"meadow": bundle.New(state.SceneConfig{MapID: "meadow", Width: 640, Height: 480}, []bundle.EntityRecord{
			record("player", `{"uuid": "hero", "transform": {"position": {"x": 50, "y": 50}}}`),
			record("follower", `{"uuid": "wisp", "parent": {"uuid": "hero"}, "localTransform": {"offset": {"x": 5, "y": 0}}}`),
			record("wall", `{"transform": {"position": {"x": 200, "y": 200}}}`),
			record("wall", `{"transform": {"position": {"x": 232, "y": 200}}}`),
			record("portal", `{"transform": {"position": {"x": 600, "y": 240}}, "portal": {"targetMap": "cave", "entryId": "door"}}`),
			record("entry", `{"transform": {"position": {"x": 300, "y": 300}}, "entry": {"id": "gate"}}`),
		}, now),
		"cave": bundle.New(state.SceneConfig{MapID: "cave", Width: 320, Height: 240}, []bundle.EntityRecord{
			record("player", `{"transform": {"position": {"x": 1, "y": 1}}}`),
			record("wall", `{"transform": {"position": {"x": 100, "y": 100}}, "sprite": {"texture": "wall"}}`),
			record("entry", `{"transform": {"position": {"x": 10, "y": 20}}, "entry": {"id": "door"}}`),
			record("dragon", `{}`),
		}, now),
	}
}

type harness struct {
	world   *world.World
	manager *Manager
	store   *bundle.MemoryStore
	memory  *sinks.MemorySink
	resets  int
}

func newHarness(t *testing.T, loader assets.Loader) *harness {
	t.Helper()
	memory := sinks.NewMemorySink()
	w, err := world.New(world.Config{}, world.Deps{Publisher: memory})
	if err != nil {
		t.Fatalf("world.New returned error: %v", err)
	}
	h := &harness{world: w, store: bundle.NewMemoryStore(), memory: memory}
	m, err := NewManager(Deps{
		World:  w,
		Static: fixtures(),
		Store:  h.store,
		Assets: loader,
		Reset:  func() { h.resets++ },
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	h.manager = m
	t.Cleanup(m.Close)
	if err := m.Bootstrap(context.Background(), "meadow"); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	return h
}

// pump runs the state machine until done yields.
func (h *harness) pump(t *testing.T, done <-chan error) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.manager.Pump(context.Background())
		select {
		case err := <-done:
			return err
		default:
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("transition did not finish")
	return nil
}

func sceneConfigs(w *world.World) []*state.Entity {
	var out []*state.Entity
	w.Each(func(e *state.Entity) {
		if e.SceneConfig != nil {
			out = append(out, e)
		}
	})
	return out
}

func TestBootstrapBuildsFirstMap(t *testing.T) {
	h := newHarness(t, nil)
	if h.manager.CurrentMap() != "meadow" || h.manager.Transitioning() {
		t.Fatalf("expected idle meadow, got %q transitioning=%v", h.manager.CurrentMap(), h.manager.Transitioning())
	}
	if got := len(h.world.FindByType("wall")); got != 2 {
		t.Fatalf("expected 2 walls, got %d", got)
	}
	hero := h.world.FindByUUID("hero")
	wisp := h.world.FindByUUID("wisp")
	if hero == nil || wisp == nil || wisp.Parent == nil || wisp.Parent.ID != hero.ID {
		t.Fatalf("expected wisp parented to hero")
	}
	if wisp.Transform.Position != geometry.V(55, 50) {
		t.Fatalf("expected child transform resolved, got %+v", wisp.Transform.Position)
	}
}

func TestBootstrapMissingMapIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.manager.Bootstrap(context.Background(), "void"); !errors.Is(err, bundle.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSwitchMapPreservesGlobalAndPersistentEntities(t *testing.T) {
	h := newHarness(t, nil)
	global := h.world.Global()
	globalID := global.ID
	hero := h.world.FindByUUID("hero")
	resetsBefore := h.resets

	if err := h.pump(t, h.manager.RequestSwitchMap("cave", "door")); err != nil {
		t.Fatalf("switch returned error: %v", err)
	}

	if h.world.Global() != global || h.world.Global().ID != globalID {
		t.Fatalf("global entity was recreated")
	}
	configs := sceneConfigs(h.world)
	if len(configs) != 1 || configs[0].SceneConfig.MapID != "cave" {
		t.Fatalf("expected exactly the cave scene config, got %d", len(configs))
	}
	if h.manager.CurrentMap() != "cave" || h.manager.Transitioning() || h.manager.State() != StateIdle {
		t.Fatalf("expected idle cave, got %q transitioning=%v state=%s", h.manager.CurrentMap(), h.manager.Transitioning(), h.manager.State())
	}
	if configs[0].SceneConfig.Transitioning {
		t.Fatalf("expected scene flag to be cleared")
	}

	players := h.world.FindByTag(state.TagPlayer)
	if len(players) != 1 || players[0] != hero {
		t.Fatalf("expected the travelling hero to be the only player, got %d", len(players))
	}
	if hero.Transform.Position != geometry.V(10, 20) {
		t.Fatalf("expected hero snapped to the door, got %+v", hero.Transform.Position)
	}
	if h.world.FindByUUID("wisp") == nil {
		t.Fatalf("expected persistent follower to travel")
	}
	if got := len(h.world.FindByType("wall")); got != 1 {
		t.Fatalf("expected only the cave wall, got %d", got)
	}
	if len(h.world.FindByType("portal")) != 0 {
		t.Fatalf("meadow portal leaked into the cave")
	}
	if h.resets != resetsBefore+1 {
		t.Fatalf("expected caches to be reset once, got %d", h.resets-resetsBefore)
	}

	saved, err := h.store.Load(context.Background(), "meadow")
	if err != nil {
		t.Fatalf("expected meadow to be persisted: %v", err)
	}
	for _, r := range saved.Entities {
		if r.Type == "player" || r.Type == "follower" {
			t.Fatalf("persistent %s must not be saved with the map", r.Type)
		}
	}
	if len(saved.Entities) != 4 {
		t.Fatalf("expected 4 saved records, got %d", len(saved.Entities))
	}

	if len(h.memory.OfType(scenelog.EventTransitionCompleted)) < 2 {
		t.Fatalf("expected completion events for bootstrap and switch")
	}
}

func TestReturningRestoresDynamicState(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.world.Add(&state.Entity{Type: "scenery", Transform: state.At(9, 9), Sprite: &state.Sprite{Texture: "flower"}}); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := h.pump(t, h.manager.RequestSwitchMap("cave", "")); err != nil {
		t.Fatalf("switch to cave returned error: %v", err)
	}
	if err := h.pump(t, h.manager.RequestSwitchMap("meadow", "gate")); err != nil {
		t.Fatalf("switch back returned error: %v", err)
	}
	if got := len(h.world.FindByType("scenery")); got != 1 {
		t.Fatalf("expected the edited meadow to come back, got %d scenery", got)
	}
	if hero := h.world.FindByUUID("hero"); hero.Transform.Position != geometry.V(300, 300) {
		t.Fatalf("expected hero at the gate, got %+v", hero.Transform.Position)
	}
	if got := len(h.world.FindByTag(state.TagPlayer)); got != 1 {
		t.Fatalf("expected one player after the round trip, got %d", got)
	}
}

func TestNewerRequestSupersedesPending(t *testing.T) {
	h := newHarness(t, nil)
	first := h.manager.RequestSwitchMap("cave", "")
	if h.manager.State() != StateRequested {
		t.Fatalf("expected requested state, got %s", h.manager.State())
	}
	second := h.manager.RequestSwitchMap("meadow", "gate")

	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if err := h.pump(t, second); err != nil {
		t.Fatalf("second request returned error: %v", err)
	}
	if h.manager.CurrentMap() != "meadow" {
		t.Fatalf("expected the newer request to win, got %q", h.manager.CurrentMap())
	}
	if len(h.memory.OfType(scenelog.EventTransitionSuperseded)) != 1 {
		t.Fatalf("expected one superseded event")
	}
}

func TestMissingDestinationLeavesWorldUntouched(t *testing.T) {
	h := newHarness(t, nil)
	before := h.world.Len()

	err := h.pump(t, h.manager.RequestSwitchMap("void", ""))
	if !errors.Is(err, bundle.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if h.world.Len() != before || h.manager.CurrentMap() != "meadow" {
		t.Fatalf("expected meadow untouched, got %d entities on %q", h.world.Len(), h.manager.CurrentMap())
	}
	if h.manager.Transitioning() {
		t.Fatalf("expected transition flag to be cleared after failure")
	}
	failed := h.memory.OfType(scenelog.EventTransitionFailed)
	if len(failed) != 1 || failed[0].Payload.(scenelog.FailedPayload).Stage != "resolve" {
		t.Fatalf("expected one resolve failure, got %+v", failed)
	}
}

func TestPreloadFailureRollsBack(t *testing.T) {
	boom := errors.New("texture server down")
	h := newHarness(t, assets.LoaderFunc(func(ctx context.Context, ids []string, _ assets.Progress) error {
		for _, id := range ids {
			if id == "slime" || id == "wall" {
				return boom
			}
		}
		return nil
	}))
	// Bootstrap ignores asset errors, so meadow is live.
	hero := h.world.FindByUUID("hero")

	err := h.pump(t, h.manager.RequestSwitchMap("cave", "door"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected preload error, got %v", err)
	}
	if h.manager.CurrentMap() != "meadow" || h.manager.Transitioning() {
		t.Fatalf("expected meadow restored and unpaused, got %q transitioning=%v", h.manager.CurrentMap(), h.manager.Transitioning())
	}
	configs := sceneConfigs(h.world)
	if len(configs) != 1 || configs[0].SceneConfig.MapID != "meadow" {
		t.Fatalf("expected meadow scene config after rollback")
	}
	if got := len(h.world.FindByType("wall")); got != 2 {
		t.Fatalf("expected meadow walls rebuilt, got %d", got)
	}
	if h.world.FindByUUID("hero") != hero || hero.Transform.Position != geometry.V(50, 50) {
		t.Fatalf("expected hero untouched by the failed switch")
	}
	failed := h.memory.OfType(scenelog.EventTransitionFailed)
	if len(failed) != 1 || !failed[0].Payload.(scenelog.FailedPayload).RolledBack {
		t.Fatalf("expected a rolled back preload failure, got %+v", failed)
	}
}

func TestWorldStaysPausedDuringPreload(t *testing.T) {
	release := make(chan struct{})
	gate := assets.LoaderFunc(func(ctx context.Context, ids []string, _ assets.Progress) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := newHarness(t, assets.Nop())
	h.manager.loader = gate

	done := h.manager.RequestSwitchMap("cave", "")
	h.manager.Pump(context.Background())
	if h.manager.State() != StateTransitioning || !h.manager.Transitioning() {
		t.Fatalf("expected an in-flight transition, got %s", h.manager.State())
	}
	h.world.Each(func(e *state.Entity) {
		if !e.Persistent {
			t.Fatalf("only travellers may exist mid-transition, found %s", e.Type)
		}
	})
	for i := 0; i < 5; i++ {
		h.manager.Pump(context.Background())
	}
	select {
	case err := <-done:
		t.Fatalf("transition finished before preload: %v", err)
	default:
	}

	close(release)
	if err := h.pump(t, done); err != nil {
		t.Fatalf("switch returned error: %v", err)
	}
	if h.manager.CurrentMap() != "cave" {
		t.Fatalf("expected cave, got %q", h.manager.CurrentMap())
	}
}

func TestInvalidAndClosedRequests(t *testing.T) {
	h := newHarness(t, nil)
	if err := <-h.manager.RequestSwitchMap("", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	pending := h.manager.RequestSwitchMap("cave", "")
	h.manager.Close()
	if err := <-pending; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := <-h.manager.RequestSwitchMap("cave", ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestRequestSwitchMapWaitHonoursContext(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.manager.RequestSwitchMapWait(ctx, "cave", ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
