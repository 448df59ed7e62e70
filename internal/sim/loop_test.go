package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"glade-runner/server/internal/telemetry"
	"glade-runner/server/logging/simulation"
)

func TestEnqueueThrottlesPerActor(t *testing.T) {
	h := newEngine(t, nil)
	var dropped []string
	loop := NewLoop(h.engine, LoopConfig{CommandCapacity: 8, PerActorLimit: 2}, LoopHooks{
		OnCommandDrop: func(reason string, cmd Command) { dropped = append(dropped, reason) },
	})

	for i := 0; i < 2; i++ {
		if ok, reason := loop.Enqueue(Command{ActorID: "editor", Type: CommandSwitchMap}); !ok {
			t.Fatalf("expected enqueue %d to succeed, got %s", i, reason)
		}
	}
	reply := make(chan error, 1)
	ok, reason := loop.Enqueue(Command{ActorID: "editor", Type: CommandSwitchMap, Reply: reply})
	if ok || reason != CommandRejectQueueLimit {
		t.Fatalf("expected queue_limit rejection, got ok=%v reason=%q", ok, reason)
	}
	if err := <-reply; !errors.Is(err, ErrQueueLimit) {
		t.Fatalf("expected ErrQueueLimit reply, got %v", err)
	}
	if ok, _ := loop.Enqueue(Command{ActorID: "other", Type: CommandSwitchMap}); !ok {
		t.Fatalf("expected another actor to be admitted")
	}
	if len(dropped) != 1 || dropped[0] != CommandRejectQueueLimit {
		t.Fatalf("unexpected drop hook calls %v", dropped)
	}

	loop.Advance(context.Background(), LoopTickContext{Tick: 1, Delta: stepDelta})
	if ok, _ := loop.Enqueue(Command{ActorID: "editor", Type: CommandSwitchMap}); !ok {
		t.Fatalf("expected per-actor allowance to reset after a drain")
	}
}

func TestEnqueueReportsFullBuffer(t *testing.T) {
	h := newEngine(t, nil)
	var logged []string
	h.engine.deps.Logger = telemetry.LoggerFunc(func(format string, args ...any) { logged = append(logged, format) })
	loop := NewLoop(h.engine, LoopConfig{CommandCapacity: 1}, LoopHooks{})

	if ok, _ := loop.Enqueue(Command{ActorID: "a"}); !ok {
		t.Fatalf("expected first enqueue to succeed")
	}
	if ok, reason := loop.Enqueue(Command{ActorID: "a"}); ok || reason != CommandRejectQueueFull {
		t.Fatalf("expected queue_full, got ok=%v reason=%q", ok, reason)
	}
	if len(logged) != 1 {
		t.Fatalf("expected first drop to be logged, got %d lines", len(logged))
	}
	if loop.Pending() != 1 {
		t.Fatalf("expected one pending command, got %d", loop.Pending())
	}
}

func TestQueueWarningEveryStep(t *testing.T) {
	h := newEngine(t, nil)
	var warnings []int
	loop := NewLoop(h.engine, LoopConfig{CommandCapacity: 8, WarningStep: 2}, LoopHooks{
		OnQueueWarning: func(length int) { warnings = append(warnings, length) },
	})
	for i := 0; i < 5; i++ {
		loop.Enqueue(Command{Type: CommandSwitchMap})
	}
	if len(warnings) != 2 || warnings[0] != 2 || warnings[1] != 4 {
		t.Fatalf("expected warnings at 2 and 4, got %v", warnings)
	}
}

func TestAdvanceAppliesQueuedCommands(t *testing.T) {
	h := newEngine(t, nil)
	loop := NewLoop(h.engine, LoopConfig{}, LoopHooks{})
	loop.Enqueue(spawnBullet(10, 10))
	loop.Enqueue(Command{Type: "bogus"})

	result := loop.Advance(context.Background(), LoopTickContext{Tick: 7, Delta: stepDelta})
	if result.Tick != 7 || result.Commands != 2 || result.Rejected != 1 {
		t.Fatalf("unexpected result %+v", result.StepResult)
	}
	if got := len(h.world.FindByType("bullet")); got != 1 {
		t.Fatalf("expected spawned bullet, got %d", got)
	}
	if loop.Pending() != 0 {
		t.Fatalf("expected queue drained")
	}
}

func TestTickBudgetOverrunStreak(t *testing.T) {
	h := newEngine(t, nil)
	loop := NewLoop(h.engine, LoopConfig{}, LoopHooks{})
	ctx := context.Background()
	slow := LoopStepResult{StepResult: StepResult{Tick: 3}, Duration: 30 * time.Millisecond, Budget: 10 * time.Millisecond}

	loop.checkBudget(ctx, slow)
	loop.checkBudget(ctx, slow)
	loop.checkBudget(ctx, LoopStepResult{Duration: time.Millisecond, Budget: 10 * time.Millisecond})
	loop.checkBudget(ctx, slow)

	events := h.memory.OfType(simulation.EventTickBudgetOverrun)
	if len(events) != 3 {
		t.Fatalf("expected 3 overrun events, got %d", len(events))
	}
	var streaks []uint64
	for _, event := range events {
		payload, ok := event.Payload.(simulation.TickBudgetOverrunPayload)
		if !ok {
			t.Fatalf("unexpected payload %T", event.Payload)
		}
		streaks = append(streaks, payload.Streak)
	}
	if streaks[0] != 1 || streaks[1] != 2 || streaks[2] != 1 {
		t.Fatalf("expected streaks [1 2 1], got %v", streaks)
	}
	if payload := events[0].Payload.(simulation.TickBudgetOverrunPayload); payload.Ratio != 3 {
		t.Fatalf("expected ratio 3, got %v", payload.Ratio)
	}
}

func TestRunStepsUntilStopped(t *testing.T) {
	h := newEngine(t, nil)
	results := make(chan LoopStepResult, 16)
	loop := NewLoop(h.engine, LoopConfig{TickRate: 200, CatchupMaxTicks: 2}, LoopHooks{
		AfterStep: func(result LoopStepResult) {
			select {
			case results <- result:
			default:
			}
		},
	})
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		loop.Run(stop)
		close(finished)
	}()

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case result := <-results:
			if result.Tick <= last {
				t.Fatalf("expected ticks to increase, got %d after %d", result.Tick, last)
			}
			if result.Delta <= 0 || result.Delta > result.MaxDelta {
				t.Fatalf("delta %v outside (0, %v]", result.Delta, result.MaxDelta)
			}
			last = result.Tick
		case <-time.After(2 * time.Second):
			t.Fatalf("loop did not tick")
		}
	}
	close(stop)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
	if h.engine.Snapshot().Tick < last {
		t.Fatalf("expected snapshot to follow the loop, got tick %d", h.engine.Snapshot().Tick)
	}
}
