package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"go.uber.org/fx"

	"github.com/etbroker/et/config"
	"github.com/etbroker/et/internal/attachment"
	"github.com/etbroker/et/internal/event"
	"github.com/etbroker/et/internal/monitor"
	"github.com/etbroker/et/internal/pipeline"
	"github.com/etbroker/et/internal/protocol"
	"github.com/etbroker/et/internal/registry"
	"github.com/etbroker/et/internal/station"
)

// NewApp wires the broker together with fx.Provide for every constructible
// component and fx.Invoke for the side-effecting registrations (conductor
// startup, route bootstrapping) that have to run once everything else
// exists.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvidePool,
			ProvideRegistry,
			ProvidePredicates,
			ProvideMonitorHub,
			ProvideWatermillPublisher,
			ProvideFanout,
			ProvideManager,
			ProvideDispatcher,
			ProvideWireServer,
			ProvideAdminRPC,
			ProvideHTTPStats,
			ProvideWSBridge,
		),
		fx.Invoke(
			RegisterConductorLifecycle,
			RegisterWireServer,
			RegisterAdminRPC,
			RegisterHTTPStats,
			RegisterWSBridge,
		),
	)
}

// ProvideLogger builds the process-wide structured logger.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

// ProvidePool builds the fixed-size shared event pool (spec §2).
func ProvidePool(cfg *config.Config) (event.Pool, error) {
	return event.NewMemPool(cfg.Pool.NumEvents, cfg.Pool.EventSize, cfg.Pool.ControlLen, cfg.Pool.NumGroups)
}

// ProvideRegistry bootstraps the station/attachment registry (spec §4.6).
func ProvideRegistry(pool event.Pool, cfg *config.Config) (*registry.System, error) {
	return registry.New(pool, registry.Limits{
		MaxStations:    cfg.MaxStations,
		MaxAttachments: cfg.MaxAttachments,
	})
}

// ProvidePredicates returns an empty user-predicate registry; operators
// register predicates out-of-band before stations that need them are
// created (spec §9).
func ProvidePredicates() *pipeline.PredicateRegistry {
	return pipeline.NewPredicateRegistry()
}

// ProvideMonitorHub builds the observer fan-out hub for the monitoring
// bridge.
func ProvideMonitorHub() *monitor.Hub {
	return monitor.NewHub(256, nil)
}

// ProvideWatermillPublisher opens the AMQP publisher used for
// recirculation notices, or returns nil when no broker URL is configured
// (pipeline.NewFanout treats a nil publisher as a no-op sink).
func ProvideWatermillPublisher(cfg *config.Config, logger *slog.Logger) (pipeline.Publisher, error) {
	if cfg.Listen.Wire == "" {
		return nil, nil
	}
	amqpURI := os.Getenv("ET_AMQP_URL")
	if amqpURI == "" {
		return nil, nil
	}
	wmLogger := watermill.NewStdLogger(false, false)
	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(amqpURI, nil), wmLogger)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// ProvideFanout wraps the publisher for conductor recirculation notices
// (SPEC_FULL.md domain-stack entry for ThreeDotsLabs/watermill).
func ProvideFanout(pub pipeline.Publisher, logger *slog.Logger) *pipeline.Fanout {
	return pipeline.NewFanout(pub, "grand_central", logger)
}

// ProvideManager builds the per-station conductor manager and wires its
// OnDeliver hook into the recirculation fanout.
func ProvideManager(sys *registry.System, predicates *pipeline.PredicateRegistry, fanout *pipeline.Fanout, logger *slog.Logger) *pipeline.Manager {
	m := pipeline.NewManager(sys, predicates, logger)
	if fanout != nil {
		m.OnDeliver = func(_ station.ID, count int) { fanout.Notify(count) }
	}
	return m
}

// ProvideDispatcher wires the command core, pointing its lifecycle hooks
// at the conductor manager and the monitoring hub.
func ProvideDispatcher(sys *registry.System, predicates *pipeline.PredicateRegistry, manager *pipeline.Manager, hub *monitor.Hub) *protocol.Dispatcher {
	d := protocol.NewDispatcher(sys, predicates)
	d.OnStationCreated = func(st *station.Station) {
		manager.Start(st)
		hub.Broadcast(monitor.StationCreatedEvent{StationID: int32(st.ID), Name: st.Name, Position: st.Position})
	}
	d.OnStationRemoved = func(id station.ID, name string) {
		manager.Stop(id)
		hub.Broadcast(monitor.StationRemovedEvent{StationID: int32(id), Name: name})
	}
	d.OnAttach = func(att *attachment.Attachment, stationID station.ID) {
		hub.Broadcast(monitor.AttachmentEvent{AttachmentID: int32(att.ID), StationID: int32(stationID), Attached: true})
	}
	d.OnDetach = func(attID attachment.ID, stationID station.ID) {
		hub.Broadcast(monitor.AttachmentEvent{AttachmentID: int32(attID), StationID: int32(stationID), Attached: false})
	}
	return d
}

func ProvideWireServer(cfg *config.Config, dispatch *protocol.Dispatcher, logger *slog.Logger) (*protocol.Server, error) {
	if cfg.Listen.Wire == "" {
		return nil, nil
	}
	return protocol.NewServer(cfg.Listen.Wire, dispatch, cfg.Pool.ControlLen, logger)
}

func ProvideAdminRPC(cfg *config.Config, dispatch *protocol.Dispatcher, logger *slog.Logger) (*protocol.AdminRPC, error) {
	if cfg.Listen.Admin == "" {
		return nil, nil
	}
	return protocol.NewAdminRPC(cfg.Listen.Admin, dispatch, logger)
}

func ProvideHTTPStats(dispatch *protocol.Dispatcher) *protocol.HTTPStats {
	return protocol.NewHTTPStats(dispatch)
}

func ProvideWSBridge(hub *monitor.Hub, logger *slog.Logger) *protocol.WSBridge {
	return protocol.NewWSBridge(hub, logger)
}

// RegisterConductorLifecycle starts GRAND_CENTRAL's own conductor at boot
// (every station created afterward is started by the dispatcher's
// OnStationCreated hook) and stops every conductor on shutdown.
func RegisterConductorLifecycle(lc fx.Lifecycle, sys *registry.System, manager *pipeline.Manager) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			manager.Start(sys.GrandCentral())
			return nil
		},
		OnStop: func(context.Context) error {
			manager.StopAll()
			return nil
		},
	})
}

func RegisterWireServer(lc fx.Lifecycle, srv *protocol.Server, logger *slog.Logger) {
	if srv == nil {
		return
	}
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Serve(stop); err != nil {
					logger.Error("wire server stopped", slog.Any("err", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(stop)
			return nil
		},
	})
}

func RegisterAdminRPC(lc fx.Lifecycle, rpc *protocol.AdminRPC, logger *slog.Logger) {
	if rpc == nil {
		return
	}
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := rpc.Serve(stop); err != nil {
					logger.Error("admin rpc stopped", slog.Any("err", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			close(stop)
			return nil
		},
	})
}

func RegisterHTTPStats(lc fx.Lifecycle, cfg *config.Config, h *protocol.HTTPStats, logger *slog.Logger) {
	if cfg.Listen.HTTP == "" {
		return
	}
	srv := &httpServer{addr: cfg.Listen.HTTP, handler: h, logger: logger}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return srv.Start() },
		OnStop:  func(ctx context.Context) error { return srv.Stop(ctx) },
	})
}

func RegisterWSBridge(lc fx.Lifecycle, cfg *config.Config, b *protocol.WSBridge, logger *slog.Logger) {
	if cfg.Listen.WS == "" {
		return
	}
	srv := &httpServer{addr: cfg.Listen.WS, handler: b, logger: logger}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return srv.Start() },
		OnStop:  func(ctx context.Context) error { return srv.Stop(ctx) },
	})
}
