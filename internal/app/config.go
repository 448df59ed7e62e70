package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"glade-runner/server/internal/sim"
	"glade-runner/server/internal/telemetry"
	"glade-runner/server/internal/world"
	"glade-runner/server/logging"
)

const (
	DefaultAddr           = ":8080"
	DefaultStartMap       = "meadow"
	DefaultMapsDir        = "maps"
	DefaultBroadcastEvery = 4
)

// Config is the full server configuration. YAML fills it first; the
// environment overrides individual fields afterwards.
type Config struct {
	Addr     string `yaml:"addr"`
	StartMap string `yaml:"startMap"`
	MapsDir  string `yaml:"mapsDir"`
	// SaveDir keeps visited maps on disk. Empty keeps them in memory.
	SaveDir string `yaml:"saveDir"`
	// AssetsDir holds textures to preload. Empty skips preloading.
	AssetsDir        string `yaml:"assetsDir"`
	AssetConcurrency int    `yaml:"assetConcurrency"`
	// BroadcastEvery sends the shape feed every N ticks.
	BroadcastEvery int `yaml:"broadcastEvery"`

	World         world.Config        `yaml:"world"`
	Engine        sim.Config          `yaml:"engine"`
	Loop          sim.LoopConfig      `yaml:"loop"`
	Logging       logging.Config      `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`

	Logger telemetry.Logger `yaml:"-"`
}

// ObservabilityConfig captures opt-in toggles that wire into the server.
type ObservabilityConfig struct {
	EnablePprofTrace bool `yaml:"enablePprofTrace"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		StartMap:       DefaultStartMap,
		MapsDir:        DefaultMapsDir,
		BroadcastEvery: DefaultBroadcastEvery,
		Engine:         sim.Config{CellSize: 64},
		Loop: sim.LoopConfig{
			TickRate:        sim.DefaultTickRate,
			CatchupMaxTicks: 4,
			CommandCapacity: 256,
			PerActorLimit:   32,
			WarningStep:     64,
		},
		Logging: logging.DefaultConfig(),
	}
}

func (cfg Config) normalized() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = defaults.Addr
	}
	if strings.TrimSpace(cfg.StartMap) == "" {
		cfg.StartMap = defaults.StartMap
	}
	if cfg.MapsDir == "" {
		cfg.MapsDir = defaults.MapsDir
	}
	if cfg.BroadcastEvery <= 0 {
		cfg.BroadcastEvery = defaults.BroadcastEvery
	}
	if cfg.Engine.CellSize <= 0 {
		cfg.Engine.CellSize = defaults.Engine.CellSize
	}
	if cfg.Loop.TickRate <= 0 {
		cfg.Loop.TickRate = defaults.Loop.TickRate
	}
	cfg.Logging = cfg.Logging.Normalized()
	return cfg
}

// LoadConfig reads path, when set, over the defaults and then applies the
// process environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("app: failed loading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("app: failed parsing %s: %w", path, err)
		}
	}
	cfg, err := ApplyEnv(cfg, os.LookupEnv)
	if err != nil {
		return Config{}, err
	}
	return cfg.normalized(), nil
}

// ApplyEnv overrides cfg from lookup. Malformed numbers and booleans are
// reported together.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	var errs []error
	if raw, ok := lookup("SIM_ADDR"); ok && raw != "" {
		cfg.Addr = raw
	}
	if raw, ok := lookup("SIM_START_MAP"); ok && raw != "" {
		cfg.StartMap = raw
	}
	if raw, ok := lookup("SIM_MAPS_DIR"); ok && raw != "" {
		cfg.MapsDir = raw
	}
	if raw, ok := lookup("SIM_TICK_RATE"); ok && raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Loop.TickRate = value
		} else {
			errs = append(errs, fmt.Errorf("invalid SIM_TICK_RATE=%q", raw))
		}
	}
	if raw, ok := lookup("LOG_LEVEL"); ok && raw != "" {
		if _, err := logging.ParseSeverity(raw); err == nil {
			cfg.Logging.Level = raw
		} else {
			errs = append(errs, fmt.Errorf("invalid LOG_LEVEL=%q: %w", raw, err))
		}
	}
	if raw, ok := lookup("LOG_FORMAT"); ok && raw != "" {
		cfg.Logging.Logrus.Format = raw
	}
	if raw, ok := lookup("ENABLE_PPROF_TRACE"); ok && raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.Observability.EnablePprofTrace = value
		} else {
			errs = append(errs, fmt.Errorf("invalid ENABLE_PPROF_TRACE=%q: %w", raw, err))
		}
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("app: bad environment: %w", errors.Join(errs...))
	}
	return cfg, nil
}
