package sim

import (
	"context"
	"sync"
	"time"

	"glade-runner/server/internal/telemetry"
	"glade-runner/server/logging/simulation"
)

const (
	// CommandRejectQueueLimit indicates a command was dropped due to per-actor
	// queue throttling.
	CommandRejectQueueLimit = "queue_limit"
	// CommandRejectQueueFull indicates the global command buffer is saturated.
	CommandRejectQueueFull = "queue_full"

	DefaultTickRate = 60

	metricTickOverruns = "sim_tick_budget_overrun_total"
	metricTicks        = "sim_ticks_total"
)

// LoopConfig tunes the command buffer and tick loop orchestration.
type LoopConfig struct {
	TickRate        int `json:"tickRate" yaml:"tickRate"`
	CatchupMaxTicks int `json:"catchupMaxTicks" yaml:"catchupMaxTicks"`
	CommandCapacity int `json:"commandCapacity" yaml:"commandCapacity"`
	PerActorLimit   int `json:"perActorLimit" yaml:"perActorLimit"`
	WarningStep     int `json:"warningStep" yaml:"warningStep"`
}

func (cfg LoopConfig) normalized() LoopConfig {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if cfg.CatchupMaxTicks < 1 {
		cfg.CatchupMaxTicks = 1
	}
	if cfg.CommandCapacity <= 0 {
		cfg.CommandCapacity = 256
	}
	return cfg
}

// LoopTickContext describes the tick about to run.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult is handed to AfterStep once a tick completes.
type LoopStepResult struct {
	StepResult
	Now          time.Time
	Delta        float64
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
}

// LoopHooks are optional callbacks invoked on the tick goroutine, except
// OnCommandDrop and OnQueueWarning which run on the enqueuing goroutine.
type LoopHooks struct {
	AfterStep      func(LoopStepResult)
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}

// Loop coordinates command ingestion and the fixed-timestep simulation runner.
type Loop struct {
	engine  *Engine
	buffer  *CommandBuffer
	hooks   LoopHooks
	config  LoopConfig
	logger  telemetry.Logger
	metrics telemetry.Metrics

	queueMu       sync.Mutex
	perActorCount map[string]int
	dropCounts    map[string]uint64

	tick    uint64
	streak  uint64
	scratch []Command
}

func NewLoop(engine *Engine, cfg LoopConfig, hooks LoopHooks) *Loop {
	cfg = cfg.normalized()
	deps := engine.Deps()
	return &Loop{
		engine:        engine,
		buffer:        NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		hooks:         hooks,
		config:        cfg,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		perActorCount: make(map[string]int),
		dropCounts:    make(map[string]uint64),
		tick:          engine.World().Tick(),
	}
}

func (l *Loop) Config() LoopConfig {
	return l.config
}

func (l *Loop) Engine() *Engine {
	return l.engine
}

// Snapshot returns the engine's last published view.
func (l *Loop) Snapshot() Snapshot {
	return l.engine.Snapshot()
}

// Pending reports the number of staged commands.
func (l *Loop) Pending() int {
	return l.buffer.Len()
}

// Enqueue stages a command, enforcing per-actor throttling and capacity
// limits. Safe for concurrent use.
func (l *Loop) Enqueue(cmd Command) (bool, string) {
	reason := ""
	var dropCount uint64
	warnAt := 0
	l.queueMu.Lock()
	if l.config.PerActorLimit > 0 && cmd.ActorID != "" {
		count := l.perActorCount[cmd.ActorID]
		if count >= l.config.PerActorLimit {
			reason = CommandRejectQueueLimit
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else {
			l.perActorCount[cmd.ActorID] = count + 1
		}
	}
	if reason == "" {
		if !l.buffer.Push(cmd) {
			reason = CommandRejectQueueFull
			dropCount = l.incrementDropLocked(cmd.ActorID)
		} else if l.config.WarningStep > 0 {
			if length := l.buffer.Len(); length >= l.config.WarningStep && length%l.config.WarningStep == 0 {
				warnAt = length
			}
		}
	}
	l.queueMu.Unlock()

	if reason != "" {
		l.reportDrop(reason, cmd, dropCount)
		return false, reason
	}
	if warnAt > 0 && l.hooks.OnQueueWarning != nil {
		l.hooks.OnQueueWarning(warnAt)
	}
	return true, ""
}

// Advance executes a single simulation step using the staged commands.
func (l *Loop) Advance(ctx context.Context, tick LoopTickContext) LoopStepResult {
	l.scratch = l.drainCommands(l.scratch[:0])
	step := l.engine.Step(ctx, tick.Tick, tick.Delta, l.scratch)
	clear(l.scratch)
	l.metrics.Add(metricTicks, 1)
	return LoopStepResult{StepResult: step, Now: tick.Now, Delta: tick.Delta}
}

// Run drives the fixed-timestep loop until the stop channel closes.
func (l *Loop) Run(stop <-chan struct{}) {
	ctx := context.Background()
	tickRate := l.config.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	clock := l.engine.Deps().Clock
	last := clock.Now()
	budgetSeconds := 1.0 / float64(tickRate)
	maxDt := budgetSeconds * float64(l.config.CatchupMaxTicks)
	budgetDuration := time.Second / time.Duration(tickRate)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := clock.Now()
			dt := now.Sub(last).Seconds()
			clamped := false
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
				clamped = true
			}
			last = now
			l.tick++

			start := clock.Now()
			result := l.Advance(ctx, LoopTickContext{Tick: l.tick, Now: now, Delta: dt})
			result.Duration = clock.Now().Sub(start)
			result.Budget = budgetDuration
			result.ClampedDelta = clamped
			result.MaxDelta = maxDt
			l.checkBudget(ctx, result)

			if l.hooks.AfterStep != nil {
				l.hooks.AfterStep(result)
			}
		}
	}
}

// checkBudget publishes an overrun for every tick slower than its budget and
// tracks how many happened in a row.
func (l *Loop) checkBudget(ctx context.Context, result LoopStepResult) {
	if result.Budget <= 0 || result.Duration <= result.Budget {
		l.streak = 0
		return
	}
	l.streak++
	l.metrics.Add(metricTickOverruns, 1)
	simulation.TickBudgetOverrun(ctx, l.engine.Deps().Publisher, result.Tick, simulation.TickBudgetOverrunPayload{
		DurationMillis: result.Duration.Milliseconds(),
		BudgetMillis:   result.Budget.Milliseconds(),
		Ratio:          float64(result.Duration) / float64(result.Budget),
		Streak:         l.streak,
	})
}

func (l *Loop) drainCommands(dst []Command) []Command {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	dst = l.buffer.Drain(dst)
	if len(l.perActorCount) > 0 {
		clear(l.perActorCount)
	}
	return dst
}

func (l *Loop) incrementDropLocked(actorID string) uint64 {
	if actorID == "" {
		return 0
	}
	count := l.dropCounts[actorID] + 1
	l.dropCounts[actorID] = count
	return count
}

func (l *Loop) reportDrop(reason string, cmd Command, count uint64) {
	if l.hooks.OnCommandDrop != nil {
		l.hooks.OnCommandDrop(reason, cmd)
	}
	cmd.reply(errQueue(reason))
	// Log only the 1st, 2nd, 4th, 8th... drop per actor.
	if count > 0 && count&(count-1) == 0 {
		l.logger.Printf(
			"[backpressure] dropping command actor=%s type=%s count=%d reason=%s limit=%d",
			cmd.ActorID,
			cmd.Type,
			count,
			reason,
			l.config.PerActorLimit,
		)
	}
}
