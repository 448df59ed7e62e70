// Package scene owns map switching: it tears the world down, persists what
// the player leaves behind and rebuilds the destination map. Transitions run
// on the tick goroutine through Pump; only the asset preload runs elsewhere
// and reports back through a channel.
package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"glade-runner/server/internal/assets"
	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/factory"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/telemetry"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
	scenelog "glade-runner/server/logging/scene"
)

var (
	// ErrSuperseded resolves a pending request replaced by a newer one.
	ErrSuperseded = errors.New("scene: request superseded")
	// ErrInvalidRequest rejects a request without a map id.
	ErrInvalidRequest = errors.New("scene: invalid request")
	// ErrClosed resolves requests still pending when the manager closes.
	ErrClosed = errors.New("scene: manager closed")
)

// Metric keys.
const (
	metricTransitions       = "scene_transitions_total"
	metricTransitionsFailed = "scene_transitions_failed_total"
	metricRecordsSkipped    = "scene_records_skipped_total"
)

// SceneEntityType is the type of the entity carrying the SceneConfig.
const SceneEntityType = "scene"

// State is the manager's position in the transition cycle.
type State int

const (
	StateIdle State = iota
	StateRequested
	StateTransitioning
)

func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateTransitioning:
		return "transitioning"
	default:
		return "idle"
	}
}

// Deps bundles the collaborators a Manager needs.
type Deps struct {
	World     *world.World
	Registry  *factory.Registry
	Static    bundle.StaticSource
	Store     bundle.Store
	Assets    assets.Loader
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Metrics   telemetry.Metrics
	Clock     func() time.Time
	// Reset clears per-map caches once the outgoing map is gone.
	Reset func()
}

type request struct {
	mapID   string
	entryID string
	done    chan error
}

func (r *request) resolve(err error) {
	r.done <- err
	close(r.done)
}

type preloadResult struct {
	seq uint64
	err error
}

type transition struct {
	req        *request
	seq        uint64
	from       string
	saved      *bundle.Bundle
	dest       *bundle.Bundle
	travellers []*state.Entity
	started    time.Time
}

// Manager runs scene transitions for one world.
type Manager struct {
	world     *world.World
	registry  *factory.Registry
	static    bundle.StaticSource
	store     bundle.Store
	loader    assets.Loader
	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
	clock     func() time.Time
	reset     func()

	mu      sync.Mutex
	pending *request
	closed  bool
	current string
	// tick mirrors the world tick for goroutines that cannot read the world.
	tick atomic.Uint64

	active  *transition
	seq     uint64
	results chan preloadResult

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewManager(deps Deps) (*Manager, error) {
	if deps.World == nil {
		return nil, errors.New("scene: world is required")
	}
	if deps.Registry == nil {
		deps.Registry = factory.Default()
	}
	if deps.Store == nil {
		deps.Store = bundle.NewMemoryStore()
	}
	if deps.Assets == nil {
		deps.Assets = assets.Nop()
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
		deps.Clock = time.Now
	}
	if deps.World.Global() == nil {
		if err := deps.World.SetGlobal(&state.Entity{Type: "global", Name: "global"}); err != nil {
			return nil, err
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		world:     deps.World,
		registry:  deps.Registry,
		static:    deps.Static,
		store:     deps.Store,
		loader:    deps.Assets,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		reset:     deps.Reset,
		results:   make(chan preloadResult, 1),
		baseCtx:   ctx,
		cancel:    cancel,
		current:   deps.World.GlobalManager().CurrentMapID,
	}
	return m, nil
}

// CurrentMap returns the id of the live map. Safe for concurrent use.
func (m *Manager) CurrentMap() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) setCurrent(mapID string) {
	m.world.GlobalManager().CurrentMapID = mapID
	m.mu.Lock()
	m.current = mapID
	m.mu.Unlock()
}

// Transitioning reports whether gameplay systems must stay paused.
func (m *Manager) Transitioning() bool {
	return m.world.GlobalManager().IsTransitioning
}

// State is read on the tick goroutine.
func (m *Manager) State() State {
	if m.active != nil {
		return StateTransitioning
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		return StateRequested
	}
	return StateIdle
}

// RequestSwitchMap queues a switch to mapID. Only the latest pending request
// is kept; a replaced one resolves with ErrSuperseded. The returned channel
// yields exactly one value once the request finishes. Safe for concurrent use.
func (m *Manager) RequestSwitchMap(mapID, entryID string) <-chan error {
	req := &request{mapID: mapID, entryID: entryID, done: make(chan error, 1)}
	if mapID == "" {
		req.resolve(fmt.Errorf("%w: empty map id", ErrInvalidRequest))
		return req.done
	}

	payload := scenelog.TransitionPayload{From: m.CurrentMap(), To: mapID, EntryID: entryID}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		req.resolve(ErrClosed)
		return req.done
	}
	previous := m.pending
	m.pending = req
	m.mu.Unlock()

	if previous != nil {
		previous.resolve(ErrSuperseded)
		scenelog.TransitionSuperseded(context.Background(), m.publisher, m.tick.Load(),
			scenelog.TransitionPayload{From: payload.From, To: previous.mapID, EntryID: previous.entryID})
	}
	scenelog.TransitionRequested(context.Background(), m.publisher, m.tick.Load(), payload)
	return req.done
}

// RequestSwitchMapWait blocks until the request finishes or ctx ends. Pump
// must be running on another goroutine.
func (m *Manager) RequestSwitchMapWait(ctx context.Context, mapID, entryID string) error {
	select {
	case err := <-m.RequestSwitchMap(mapID, entryID):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pump advances the state machine. It never blocks: a running transition
// only finishes once its preload result has arrived.
func (m *Manager) Pump(ctx context.Context) {
	m.tick.Store(m.world.Tick())
	if m.active != nil {
		select {
		case result := <-m.results:
			if result.seq == m.active.seq {
				m.finish(ctx, result.err)
			}
		default:
		}
		return
	}

	m.mu.Lock()
	req := m.pending
	m.pending = nil
	m.mu.Unlock()
	if req != nil {
		m.start(ctx, req)
	}
}

// Close cancels an in-flight preload and fails any pending request.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	req := m.pending
	m.pending = nil
	m.closed = true
	m.mu.Unlock()
	if req != nil {
		req.resolve(ErrClosed)
	}
}

func (m *Manager) setTransitioning(on bool) {
	m.world.GlobalManager().IsTransitioning = on
	if cfg := m.world.SceneConfig(); cfg != nil {
		cfg.SceneConfig.Transitioning = on
	}
}

func (m *Manager) start(ctx context.Context, req *request) {
	t := &transition{req: req, from: m.CurrentMap(), started: m.clock()}
	payload := scenelog.TransitionPayload{From: t.from, To: req.mapID, EntryID: req.entryID}
	scenelog.TransitionStarted(ctx, m.publisher, m.world.Tick(), payload)
	m.setTransitioning(true)

	dest, err := bundle.Resolve(ctx, m.store, m.static, req.mapID)
	if err != nil {
		m.fail(ctx, t, "resolve", err, false)
		return
	}
	t.dest = dest

	if t.from != "" && m.world.SceneConfig() != nil {
		saved := m.Capture()
		if err := m.store.Save(ctx, t.from, saved); err != nil {
			m.fail(ctx, t, "persist", err, false)
			return
		}
		t.saved = saved
	}

	t.travellers = m.world.Clear(travels)
	if m.reset != nil {
		m.reset()
	}

	m.seq++
	t.seq = m.seq
	m.active = t
	go m.preload(t.seq, m.tick.Load(), req.mapID, dest.TextureIDs())
}

// preload runs off the tick goroutine and must not touch the world.
func (m *Manager) preload(seq, tick uint64, mapID string, ids []string) {
	err := m.loader.LoadAssets(m.baseCtx, ids, func(loaded, total int) {
		progress := 1.0
		if total > 0 {
			progress = float64(loaded) / float64(total)
		}
		scenelog.AssetsProgress(context.Background(), m.publisher, tick, scenelog.ProgressPayload{To: mapID, Progress: progress})
	})
	m.results <- preloadResult{seq: seq, err: err}
}

func (m *Manager) finish(ctx context.Context, preloadErr error) {
	t := m.active
	m.active = nil

	if preloadErr != nil {
		rolledBack := false
		if t.saved != nil {
			m.instantiate(t.saved, t.travellers)
			rolledBack = true
		}
		m.fail(ctx, t, "preload", preloadErr, rolledBack)
		return
	}

	created := m.instantiate(t.dest, t.travellers)
	m.setCurrent(t.dest.MapID())
	m.snapToEntry(t.req.entryID)
	m.setTransitioning(false)
	m.metrics.Add(metricTransitions, 1)

	scenelog.TransitionCompleted(ctx, m.publisher, m.world.Tick(), scenelog.CompletedPayload{
		TransitionPayload: scenelog.TransitionPayload{From: t.from, To: t.req.mapID, EntryID: t.req.entryID},
		Entities:          created,
		Travellers:        len(t.travellers),
		DurationMillis:    m.clock().Sub(t.started).Milliseconds(),
	})
	m.logger.Printf("[scene] switched %q -> %q (%d entities, %d travellers)", t.from, t.req.mapID, created, len(t.travellers))
	t.req.resolve(nil)
}

// fail logs the failure, clears the transition flag and resolves the request.
func (m *Manager) fail(ctx context.Context, t *transition, stage string, err error, rolledBack bool) {
	m.setTransitioning(false)
	m.metrics.Add(metricTransitionsFailed, 1)
	scenelog.TransitionFailed(ctx, m.publisher, m.world.Tick(), scenelog.FailedPayload{
		TransitionPayload: scenelog.TransitionPayload{From: t.from, To: t.req.mapID, EntryID: t.req.entryID},
		Stage:             stage,
		Error:             err.Error(),
		RolledBack:        rolledBack,
	})
	m.logger.Printf("[scene] switch %q -> %q failed at %s: %v", t.from, t.req.mapID, stage, err)
	t.req.resolve(fmt.Errorf("scene: switch to %s failed at %s: %w", t.req.mapID, stage, err))
}

// travels keeps persistent entities across a map switch. A scene config never
// travels.
func travels(e *state.Entity) bool {
	return e.Persistent && e.SceneConfig == nil
}

// Bootstrap loads the first map synchronously. Missing map data is the one
// fatal error of the package; asset failures are logged and ignored.
func (m *Manager) Bootstrap(ctx context.Context, mapID string) error {
	dest, err := bundle.Resolve(ctx, m.store, m.static, mapID)
	if err != nil {
		return fmt.Errorf("scene: bootstrap %s: %w", mapID, err)
	}
	m.setTransitioning(true)
	defer m.setTransitioning(false)

	travellers := m.world.Clear(travels)
	if m.reset != nil {
		m.reset()
	}
	if err := m.loader.LoadAssets(ctx, dest.TextureIDs(), nil); err != nil {
		m.logger.Printf("[scene] bootstrap %q: asset preload failed: %v", mapID, err)
	}
	created := m.instantiate(dest, travellers)
	m.setCurrent(dest.MapID())
	scenelog.TransitionCompleted(ctx, m.publisher, m.world.Tick(), scenelog.CompletedPayload{
		TransitionPayload: scenelog.TransitionPayload{To: mapID},
		Entities:          created,
		Travellers:        len(travellers),
	})
	return nil
}
