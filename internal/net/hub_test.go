package net

import (
	"errors"
	"sync"
	"testing"
	"time"

	"glade-runner/server/internal/sim"
)

type recordingConn struct {
	mu        sync.Mutex
	writes    [][]byte
	deadlines []time.Time
	fail      bool
	closed    bool
}

func (c *recordingConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *recordingConn) SetWriteDeadline(deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadlines = append(c.deadlines, deadline)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestBroadcastDropsFailingSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	healthy := &recordingConn{}
	broken := &recordingConn{fail: true}
	hub.Subscribe(healthy)
	hub.Subscribe(broken)

	hub.Broadcast(sim.Snapshot{Tick: 3})

	if hub.Len() != 1 {
		t.Fatalf("expected failing subscriber to be dropped, have %d", hub.Len())
	}
	if !broken.closed || healthy.closed {
		t.Fatalf("expected only the broken connection to close")
	}
	if len(healthy.writes) != 1 || len(healthy.deadlines) != 1 {
		t.Fatalf("expected one deadline-bounded write, got %d writes %d deadlines", len(healthy.writes), len(healthy.deadlines))
	}
	if !healthy.deadlines[0].After(time.Now()) {
		t.Fatalf("expected write deadline in the future")
	}
}

func TestPublishKeepsOnlyNewestSnapshot(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Publish(sim.Snapshot{Tick: 1})
	hub.Publish(sim.Snapshot{Tick: 2})
	select {
	case snap := <-hub.latest:
		if snap.Tick != 2 {
			t.Fatalf("expected newest snapshot, got tick %d", snap.Tick)
		}
	default:
		t.Fatalf("expected a pending snapshot")
	}
}

func TestDisconnectUnknownIsNoop(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Disconnect("missing")
	if hub.Len() != 0 {
		t.Fatalf("expected empty hub")
	}
}
