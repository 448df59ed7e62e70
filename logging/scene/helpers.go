package scene

import (
	"context"

	"glade-runner/server/logging"
)

const (
	// EventTransitionRequested is emitted when a map switch is queued.
	EventTransitionRequested logging.EventType = "scene.transition_requested"
	// EventTransitionSuperseded is emitted when a newer request replaces a pending one.
	EventTransitionSuperseded logging.EventType = "scene.transition_superseded"
	// EventTransitionStarted is emitted when the world begins tearing down.
	EventTransitionStarted logging.EventType = "scene.transition_started"
	// EventAssetsProgress is emitted while the destination's textures preload.
	EventAssetsProgress logging.EventType = "scene.assets_progress"
	// EventTransitionCompleted is emitted once the destination map is live.
	EventTransitionCompleted logging.EventType = "scene.transition_completed"
	// EventTransitionFailed is emitted when a transition aborts or rolls back.
	EventTransitionFailed logging.EventType = "scene.transition_failed"
)

// TransitionPayload describes a map switch.
type TransitionPayload struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	EntryID string `json:"entryId,omitempty"`
}

// CompletedPayload adds what the new map contains.
type CompletedPayload struct {
	TransitionPayload
	Entities       int   `json:"entities"`
	Travellers     int   `json:"travellers"`
	DurationMillis int64 `json:"durationMillis"`
}

// FailedPayload records the failing step and error.
type FailedPayload struct {
	TransitionPayload
	Stage      string `json:"stage"`
	Error      string `json:"error"`
	RolledBack bool   `json:"rolledBack"`
}

// ProgressPayload reports asset preload progress as a fraction.
type ProgressPayload struct {
	To       string  `json:"to"`
	Progress float64 `json:"progress"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, sev logging.Severity, tick uint64, mapID string, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    logging.Scene(mapID),
		Severity: sev,
		Category: "scene",
		Payload:  payload,
	})
}

func TransitionRequested(ctx context.Context, pub logging.Publisher, tick uint64, payload TransitionPayload) {
	publish(ctx, pub, EventTransitionRequested, logging.SeverityInfo, tick, payload.To, payload)
}

func TransitionSuperseded(ctx context.Context, pub logging.Publisher, tick uint64, payload TransitionPayload) {
	publish(ctx, pub, EventTransitionSuperseded, logging.SeverityWarn, tick, payload.To, payload)
}

func TransitionStarted(ctx context.Context, pub logging.Publisher, tick uint64, payload TransitionPayload) {
	publish(ctx, pub, EventTransitionStarted, logging.SeverityInfo, tick, payload.To, payload)
}

func AssetsProgress(ctx context.Context, pub logging.Publisher, tick uint64, payload ProgressPayload) {
	publish(ctx, pub, EventAssetsProgress, logging.SeverityDebug, tick, payload.To, payload)
}

func TransitionCompleted(ctx context.Context, pub logging.Publisher, tick uint64, payload CompletedPayload) {
	publish(ctx, pub, EventTransitionCompleted, logging.SeverityInfo, tick, payload.To, payload)
}

// TransitionFailed is published at error severity; the world stays playable.
func TransitionFailed(ctx context.Context, pub logging.Publisher, tick uint64, payload FailedPayload) {
	publish(ctx, pub, EventTransitionFailed, logging.SeverityError, tick, payload.To, payload)
}
