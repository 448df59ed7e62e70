// Package net exposes the simulation's debug surface over HTTP and a
// websocket shape feed.
package net

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/websocket"

	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/scene"
	"glade-runner/server/internal/sim"
	"glade-runner/server/internal/state"
	"glade-runner/server/internal/telemetry"
)

const defaultCommandTimeout = 10 * time.Second

// Simulation is what the handlers need from the running loop.
type Simulation interface {
	Snapshot() sim.Snapshot
	Enqueue(cmd sim.Command) (bool, string)
}

type HTTPHandlerConfig struct {
	Logger telemetry.Logger
	// Diagnostics adds extra fields to /diagnostics, such as router stats.
	Diagnostics      func() map[string]any
	CommandTimeout   time.Duration
	EnablePprofTrace bool
	Clock            func() time.Time
}

type switchRequest struct {
	MapID   string `json:"mapId"`
	EntryID string `json:"entryId"`
}

type deleteRequest struct {
	ID state.EntityID `json:"id"`
}

func NewHTTPHandler(simulation Simulation, hub *Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snap := simulation.Snapshot()
		payload := map[string]any{
			"status":        "ok",
			"serverTime":    clock().UnixMilli(),
			"tick":          snap.Tick,
			"mapId":         snap.MapID,
			"sceneState":    snap.State,
			"transitioning": snap.Transitioning,
			"entities":      snap.Entities,
		}
		if hub != nil {
			payload["subscribers"] = hub.Len()
		}
		if cfg.Diagnostics != nil {
			for key, value := range cfg.Diagnostics() {
				payload[key] = value
			}
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/scene/switch", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req switchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.MapID == "" {
			httpError(w, "missing mapId", nethttp.StatusBadRequest)
			return
		}
		err := submit(r.Context(), simulation, timeout, sim.Command{
			ActorID:   "http",
			Type:      sim.CommandSwitchMap,
			IssuedAt:  clock(),
			SwitchMap: &sim.SwitchMapCommand{MapID: req.MapID, EntryID: req.EntryID},
		})
		if err != nil {
			logger.Printf("[scene] switch to %q via http failed: %v", req.MapID, err)
			httpError(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"status": "ok", "mapId": req.MapID})
	})

	mux.HandleFunc("/entities/delete", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req deleteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.ID == 0 {
			httpError(w, "missing id", nethttp.StatusBadRequest)
			return
		}
		err := submit(r.Context(), simulation, timeout, sim.Command{
			ActorID:  "http",
			Type:     sim.CommandDeleteEntity,
			IssuedAt: clock(),
			Delete:   &sim.DeleteCommand{ID: req.ID},
		})
		if err != nil {
			httpError(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"status": "ok", "id": req.ID})
	})

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	mux.HandleFunc("/ws", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if hub == nil {
			httpError(w, "shape feed disabled", nethttp.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Printf("upgrade failed: %v", err)
			return
		}
		id := hub.Subscribe(conn)
		if err := hub.Send(id, simulation.Snapshot()); err != nil {
			hub.Disconnect(id)
			return
		}
		// The feed is one-way; reading only detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.Disconnect(id)
				return
			}
		}
	})

	if cfg.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux
}

// submit enqueues cmd and waits for its outcome.
func submit(ctx context.Context, simulation Simulation, timeout time.Duration, cmd sim.Command) error {
	reply := make(chan error, 1)
	cmd.Reply = reply
	if ok, reason := simulation.Enqueue(cmd); !ok {
		// Enqueue already replied with the matching queue error.
		select {
		case err := <-reply:
			return err
		default:
			return errors.New(reason)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bundle.ErrNotFound), errors.Is(err, sim.ErrEntityNotFound):
		return nethttp.StatusNotFound
	case errors.Is(err, sim.ErrProtectedEntity):
		return nethttp.StatusForbidden
	case errors.Is(err, scene.ErrSuperseded):
		return nethttp.StatusConflict
	case errors.Is(err, scene.ErrInvalidRequest), errors.Is(err, bundle.ErrInvalidMapID):
		return nethttp.StatusBadRequest
	case errors.Is(err, sim.ErrQueueFull), errors.Is(err, sim.ErrQueueLimit), errors.Is(err, scene.ErrClosed):
		return nethttp.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return nethttp.StatusGatewayTimeout
	default:
		return nethttp.StatusInternalServerError
	}
}

func decodeBody(w nethttp.ResponseWriter, r *nethttp.Request, dst any) bool {
	if r.Body == nil {
		httpError(w, "invalid payload", nethttp.StatusBadRequest)
		return false
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		httpError(w, "invalid payload", nethttp.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
