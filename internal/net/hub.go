package net

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"glade-runner/server/internal/sim"
	"glade-runner/server/internal/telemetry"
)

const (
	writeWait = 10 * time.Second

	metricBroadcasts     = "net_shape_broadcasts_total"
	metricBroadcastBytes = "net_shape_broadcast_bytes_total"
	metricSubscribers    = "net_shape_subscribers"
	metricDisconnects    = "net_shape_disconnects_total"
)

// subscriberConn is the slice of *websocket.Conn the hub writes through.
type subscriberConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	conn subscriberConn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// shapesMessage is the debug feed frame.
type shapesMessage struct {
	Type string `json:"type"`
	sim.Snapshot
	ServerTime int64 `json:"serverTime"`
}

// Hub fans snapshots out to websocket subscribers. Publish never blocks the
// tick goroutine: only the newest snapshot waits for Run to send it.
type Hub struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics

	mu          sync.Mutex
	subscribers map[string]*subscriber

	latest chan sim.Snapshot
}

func NewHub(logger telemetry.Logger, metrics telemetry.Metrics) *Hub {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Hub{
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[string]*subscriber),
		latest:      make(chan sim.Snapshot, 1),
	}
}

// Subscribe registers conn and returns its id.
func (h *Hub) Subscribe(conn subscriberConn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.subscribers[id] = &subscriber{conn: conn}
	count := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.Store(metricSubscribers, uint64(count))
	return id
}

// Disconnect closes and forgets a subscriber. Unknown ids are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	count := len(h.subscribers)
	h.mu.Unlock()
	if !ok {
		return
	}
	sub.conn.Close()
	h.metrics.Add(metricDisconnects, 1)
	h.metrics.Store(metricSubscribers, uint64(count))
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Publish hands snap to the broadcaster, replacing any unsent snapshot.
func (h *Hub) Publish(snap sim.Snapshot) {
	for {
		select {
		case h.latest <- snap:
			return
		default:
		}
		select {
		case <-h.latest:
		default:
		}
	}
}

// Run broadcasts published snapshots until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-h.latest:
			h.Broadcast(snap)
		}
	}
}

// Broadcast writes snap to every subscriber and drops those that fail.
func (h *Hub) Broadcast(snap sim.Snapshot) {
	data, err := MarshalShapes(snap)
	if err != nil {
		h.logger.Printf("failed to marshal shapes message: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Printf("failed to send shapes to %s: %v", id, err)
			h.Disconnect(id)
			continue
		}
		h.metrics.Add(metricBroadcastBytes, uint64(len(data)))
	}
	h.metrics.Add(metricBroadcasts, 1)
}

// Send writes snap to one subscriber.
func (h *Hub) Send(id string, snap sim.Snapshot) error {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	data, err := MarshalShapes(snap)
	if err != nil {
		return err
	}
	return sub.write(data)
}

func MarshalShapes(snap sim.Snapshot) ([]byte, error) {
	return json.Marshal(shapesMessage{Type: "shapes", Snapshot: snap, ServerTime: time.Now().UnixMilli()})
}
