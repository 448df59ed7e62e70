package simulation

import (
	"context"

	"glade-runner/server/logging"
)

const (
	// EventTickBudgetOverrun is emitted when the simulation loop exceeds the allotted tick budget.
	EventTickBudgetOverrun logging.EventType = "simulation.tick_budget_overrun"
	// EventSensorEntered is emitted when a target starts overlapping a sensor.
	EventSensorEntered logging.EventType = "simulation.sensor_entered"
	// EventSensorExited is emitted when a target stops overlapping a sensor.
	EventSensorExited logging.EventType = "simulation.sensor_exited"
	// EventMotionStatus is emitted when a mover's status changes.
	EventMotionStatus logging.EventType = "simulation.motion_status"
	// EventCommandRejected is emitted when a queued command cannot be applied.
	EventCommandRejected logging.EventType = "simulation.command_rejected"
)

// TickBudgetOverrunPayload captures timing details for a tick budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
	Streak         uint64  `json:"streak"`
}

// TickBudgetOverrun publishes a warning when the simulation exceeds the configured tick budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
	})
}

// SensorPayload names the detection channel.
type SensorPayload struct {
	Channel string `json:"channel"`
}

// SensorChanged publishes an enter or exit at debug severity.
func SensorChanged(ctx context.Context, pub logging.Publisher, tick uint64, entered bool, sensor, target logging.EntityRef, payload SensorPayload) {
	if pub == nil {
		return
	}
	eventType := EventSensorExited
	if entered {
		eventType = EventSensorEntered
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    sensor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityDebug,
		Category: "simulation",
		Payload:  payload,
	})
}

// MotionStatusPayload captures a status transition.
type MotionStatusPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func MotionStatus(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MotionStatusPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMotionStatus,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "simulation",
		Payload:  payload,
	})
}

// CommandRejectedPayload records why a command was dropped.
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
}

func CommandRejected(ctx context.Context, pub logging.Publisher, tick uint64, payload CommandRejectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCommandRejected,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityWarn,
		Category: "simulation",
		Payload:  payload,
	})
}
