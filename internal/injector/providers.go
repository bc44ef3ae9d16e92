// Package injector assembles the server object graph with google/wire.
package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/hephaestus/internal/config"
	"github.com/zeusync/hephaestus/internal/core/events/bus"
	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/registry"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/internal/core/world"
	"github.com/zeusync/hephaestus/internal/server"
	transport "github.com/zeusync/hephaestus/internal/transport/wire"
)

// ConfigPath is the YAML file the server is configured from. Empty means
// defaults.
type ConfigPath string

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideBus,
	ProvideRegistry,
	ProvideWorld,
	ProvideServer,
)

func ProvideConfig(path ConfigPath) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(string(path))
}

func ProvideLogger(cfg config.Config) (*log.Logger, func()) {
	logger := log.New(cfg.Level())
	return logger, func() { _ = logger.Sync() }
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

// ProvideRegistry builds a registry whose views deliver through the
// transport connections of their viewers.
func ProvideRegistry(events bus.EventBus, logger log.Log) *registry.Registry {
	return registry.New(
		registry.WithBus(events),
		registry.WithLogger(logger),
		registry.WithViewOptions(view.WithTransport(transport.Transport{})),
	)
}

func ProvideWorld(cfg config.Config, reg *registry.Registry, logger log.Log) *world.World {
	return world.New(reg, cfg.TickRate, logger, world.WithWorkers(cfg.Workers))
}

// ProvideServer creates the server and loads the configured blueprints and
// view presets into its registry.
func ProvideServer(cfg config.Config, logger log.Log, events bus.EventBus, reg *registry.Registry, w *world.World) (*server.Server, error) {
	srv := server.NewServer(cfg, logger, events, reg, w)
	if err := srv.LoadBlueprints(); err != nil {
		return nil, err
	}
	if err := srv.SpawnPresets(); err != nil {
		return nil, err
	}
	return srv, nil
}
