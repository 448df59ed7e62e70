package lifecycle

import (
	"context"

	"glade-runner/server/logging"
)

const (
	// EventEntityAdded is emitted when an entity joins the world arena.
	EventEntityAdded logging.EventType = "lifecycle.entity_added"
	// EventEntityRemoved is emitted when an entity leaves the world arena.
	EventEntityRemoved logging.EventType = "lifecycle.entity_removed"
	// EventRemovalRejected is emitted when a protected entity survives a removal request.
	EventRemovalRejected logging.EventType = "lifecycle.removal_rejected"
	// EventInvariantViolated is emitted when an add or reparent breaks a world invariant.
	EventInvariantViolated logging.EventType = "lifecycle.invariant_violated"
	// EventWorldCleared is emitted after the arena is emptied for a map change.
	EventWorldCleared logging.EventType = "lifecycle.world_cleared"
)

// EntityPayload identifies the entity that changed.
type EntityPayload struct {
	UUID string `json:"uuid,omitempty"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// RejectionPayload captures why an operation was refused.
type RejectionPayload struct {
	Reason string `json:"reason"`
}

// WorldClearedPayload counts what a clear removed and kept.
type WorldClearedPayload struct {
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

// EntityAdded publishes a debug event for a new arena entity.
func EntityAdded(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityAdded,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "lifecycle",
		Payload:  payload,
	})
}

// EntityRemoved publishes a debug event for a removed arena entity.
func EntityRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload EntityPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntityRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: "lifecycle",
		Payload:  payload,
	})
}

// RemovalRejected warns that a removal targeted a protected entity.
func RemovalRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RejectionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRemovalRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "lifecycle",
		Payload:  payload,
	})
}

// InvariantViolated warns that an operation was refused to keep the world consistent.
func InvariantViolated(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RejectionPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventInvariantViolated,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: "lifecycle",
		Payload:  payload,
	})
}

// WorldCleared reports the outcome of a world clear.
func WorldCleared(ctx context.Context, pub logging.Publisher, tick uint64, payload WorldClearedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventWorldCleared,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: "lifecycle",
		Payload:  payload,
	})
}
