// Package app wires configuration, logging, the simulation loop and the
// debug surface into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"glade-runner/server/internal/assets"
	"glade-runner/server/internal/bundle"
	"glade-runner/server/internal/factory"
	servernet "glade-runner/server/internal/net"
	"glade-runner/server/internal/sim"
	"glade-runner/server/internal/telemetry"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
	loggingSinks "glade-runner/server/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// BuildSinks creates every enabled sink. The returned closers release files
// the sinks write to and run after the router has closed.
func BuildSinks(cfg logging.Config, stdout io.Writer) ([]logging.NamedSink, []io.Closer, error) {
	var (
		named   []logging.NamedSink
		closers []io.Closer
	)
	fail := func(err error) ([]logging.NamedSink, []io.Closer, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	for _, name := range cfg.EnabledSinks {
		switch name {
		case logging.SinkConsole:
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewConsoleSink(stdout)})
		case logging.SinkLogrus:
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewLogrus(stdout, cfg.Logrus.Format, cfg.MinimumSeverity)})
		case logging.SinkMemory:
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewMemorySink()})
		case logging.SinkJSON:
			if cfg.JSON.FilePath == "" {
				named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(stdout, cfg.JSON.FlushInterval)})
				continue
			}
			file, err := os.OpenFile(cfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fail(fmt.Errorf("failed opening json log %s: %w", cfg.JSON.FilePath, err))
			}
			closers = append(closers, file)
			named = append(named, logging.NamedSink{Name: name, Sink: loggingSinks.NewJSON(file, cfg.JSON.FlushInterval)})
		default:
			return fail(fmt.Errorf("unknown log sink %q", name))
		}
	}
	return named, closers, nil
}

func newTelemetryLogger(cfg logging.Config) telemetry.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Logrus.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return telemetry.WrapLogrus(logger)
}

// Run serves until ctx ends or a component fails. Only a missing start map
// or an unusable listener is fatal.
func Run(ctx context.Context, cfg Config) error {
	cfg = cfg.normalized()
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = newTelemetryLogger(cfg.Logging)
	}

	named, closers, err := BuildSinks(cfg.Logging, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to construct logging sinks: %w", err)
	}
	router, err := logging.NewRouter(logging.SystemClock(), cfg.Logging, named)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		for _, c := range closers {
			c.Close()
		}
	}()
	metrics := telemetry.WrapMetrics(router.Metrics())

	w, err := world.New(cfg.World, world.Deps{Publisher: router})
	if err != nil {
		return fmt.Errorf("failed to construct world: %w", err)
	}

	var store bundle.Store = bundle.NewMemoryStore()
	if cfg.SaveDir != "" {
		store = bundle.NewDirStore(cfg.SaveDir)
	}
	loader := assets.Nop()
	if cfg.AssetsDir != "" {
		loader = assets.NewDirLoader(cfg.AssetsDir, cfg.AssetConcurrency)
	}

	engine, err := sim.NewEngine(cfg.Engine, sim.Deps{
		World:     w,
		Registry:  factory.Default(),
		Static:    bundle.DirSource{Dir: cfg.MapsDir},
		Store:     store,
		Assets:    loader,
		Publisher: router,
		Logger:    telemetryLogger,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}
	defer engine.Close()
	if err := engine.Bootstrap(ctx, cfg.StartMap); err != nil {
		return fmt.Errorf("failed to load start map: %w", err)
	}

	hub := servernet.NewHub(telemetryLogger, metrics)
	every := uint64(cfg.BroadcastEvery)
	loop := sim.NewLoop(engine, cfg.Loop, sim.LoopHooks{
		AfterStep: func(result sim.LoopStepResult) {
			if result.Tick%every == 0 || result.Transitioning {
				hub.Publish(engine.Snapshot())
			}
		},
		OnQueueWarning: func(length int) {
			telemetryLogger.Printf("[backpressure] command queue at %d/%d", length, cfg.Loop.CommandCapacity)
		},
	})

	handler := servernet.NewHTTPHandler(loop, hub, servernet.HTTPHandlerConfig{
		Logger:           telemetryLogger,
		EnablePprofTrace: cfg.Observability.EnablePprofTrace,
		Diagnostics: func() map[string]any {
			return map[string]any{
				"tickRate":        loop.Config().TickRate,
				"pendingCommands": loop.Pending(),
				"router":          router.Stats(),
				"metrics":         router.Metrics().Snapshot(),
			}
		},
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loop.Run(gctx.Done())
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		telemetryLogger.Printf("server listening on %s (map %s)", srv.Addr, cfg.StartMap)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
