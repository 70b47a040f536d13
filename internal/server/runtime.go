package server

import (
	"context"
	"fmt"
	"log"

	"javafmtd/internal/client"
	"javafmtd/internal/config"
	"javafmtd/internal/events"
	"javafmtd/internal/formatter"
	"javafmtd/internal/health"
	"javafmtd/internal/launcher"
	"javafmtd/internal/metrics"
	"javafmtd/internal/persistence"
	"javafmtd/internal/probe"
	"javafmtd/internal/registry"
	"javafmtd/internal/runtime/commands"
	"javafmtd/internal/runtime/supervisor"
	"javafmtd/internal/services"
	"javafmtd/internal/state/paths"
)

// Runtime is the fully wired formatting host shared by the daemon and the
// one-off CLI commands.
type Runtime struct {
	Config     config.Config
	Events     *events.Bus
	Health     *health.Tracker
	Metrics    *metrics.PrometheusCollector
	Journal    *persistence.Journal
	Registry   *registry.Registry
	Client     *client.Client
	Backend    formatter.Backend
	Provider   *formatter.Provider
	Visible    *formatter.VisibleSet
	Dispatcher *commands.Dispatcher
	Supervisor *supervisor.Supervisor
}

// RuntimeDeps replaces the process-facing collaborators, mainly for tests.
type RuntimeDeps struct {
	Prober      registry.Prober
	Allocator   registry.Allocator
	Launcher    registry.Launcher
	JournalPath string
	// SkipJournal runs without the SQLite launch journal.
	SkipJournal bool
}

// NewRuntime assembles every component from cfg. Nothing is started.
func NewRuntime(cfg config.Config, deps RuntimeDeps) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StateDir != "" {
		paths.SetRoot(cfg.StateDir)
	}

	rt := &Runtime{
		Config:     cfg,
		Events:     events.NewBus(),
		Health:     health.NewTracker(),
		Metrics:    metrics.NewPrometheusCollector("javafmtd"),
		Visible:    formatter.NewVisibleSet(),
		Dispatcher: commands.NewDispatcher(),
		Supervisor: supervisor.New(),
	}
	rt.Dispatcher.Use(commands.Recover())
	rt.Dispatcher.Use(commands.Logging(0))

	if !deps.SkipJournal {
		j, err := persistence.OpenJournal(deps.JournalPath)
		if err != nil {
			// the journal is bookkeeping only; run without it
			log.Printf("WARN: launch journal unavailable: %v", err)
			rt.Health.Setf(health.ComponentJournal, health.LevelWarn, "unavailable: %v", err)
		} else {
			rt.Journal = j
			rt.Health.Setf(health.ComponentJournal, health.LevelOK, "%s", j.Path())
		}
	}

	prober := deps.Prober
	if prober == nil {
		p := probe.New(probe.NewSystemLister(), cfg.ServiceMarker())
		log.Printf("INFO: format service discovery matches %q", p.Marker())
		prober = p
	}
	alloc := deps.Allocator
	if alloc == nil {
		rng := cfg.PortRange()
		if err := rng.Validate(); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
		alloc = services.NewPortAllocator(rng)
	}
	launch := deps.Launcher
	if launch == nil {
		launch = launcher.New(launcher.Config{
			JavaBin:         cfg.Service.Java,
			JavaArgs:        cfg.Service.JavaArgs,
			JarPath:         cfg.ServiceJar(),
			ReadyTimeout:    cfg.Service.ReadyTimeout,
			StrictReadiness: cfg.Service.StrictReadiness,
		})
	}

	regOpts := []registry.Option{
		registry.WithInitialPort(cfg.Service.InitialPort),
		registry.WithInterval(cfg.Service.HeartbeatInterval),
		registry.WithMetrics(rt.Metrics),
		registry.WithEvents(rt.Events),
		registry.WithTracker(rt.Health),
	}
	if rt.Journal != nil {
		regOpts = append(regOpts, registry.WithJournal(rt.Journal))
	}
	rt.Registry = registry.New(prober, alloc, launch, regOpts...)

	rt.Client = client.New(rt.Registry, client.Options{
		RequestTimeout: cfg.Client.RequestTimeout,
		HealthTimeout:  cfg.Client.HealthTimeout,
		MaxRetries:     cfg.Client.MaxRetries,
		RetryInterval:  cfg.Client.RetryInterval,
	})
	rt.Registry.SetHealthChecker(rt.Client)

	switch cfg.Formatter.Backend {
	case config.BackendOneShot:
		jar := cfg.Formatter.OneShotJar
		if jar == "" {
			jar = paths.DefaultFormatterJar()
		}
		oneshot := formatter.NewOneShot(cfg.Service.Java, jar)
		oneshot.JavaArgs = cfg.Service.JavaArgs
		rt.Backend = oneshot
	default:
		rt.Backend = rt.Client
	}

	rt.Provider = formatter.NewProvider(rt.Backend,
		formatter.WithVisibility(rt.Visible),
		formatter.WithLanguages(cfg.LanguageModes()),
		formatter.WithMetrics(rt.Metrics),
		formatter.WithEvents(rt.Events),
	)

	formatter.RegisterHandlers(rt.Dispatcher, rt.Provider, rt.Backend)
	var journalReader registry.JournalReader
	if rt.Journal != nil {
		journalReader = rt.Journal
	}
	registry.RegisterHandlers(rt.Dispatcher, rt.Registry, rt.Health, journalReader)

	// stopped last
	rt.Supervisor.Register(supervisor.NewComponent("events", nil, func(context.Context) error {
		rt.Events.Close()
		return nil
	}))
	rt.Supervisor.Register(newEventObserver(rt.Events, rt.Health))
	if cfg.Formatter.Backend == config.BackendService {
		rt.Supervisor.Register(rt.Registry)
	}
	return rt, nil
}

// Start runs the supervised components.
func (rt *Runtime) Start(ctx context.Context) error {
	return rt.Supervisor.Start(ctx)
}

// Stop stops components and closes the journal. The format service keeps running.
func (rt *Runtime) Stop(ctx context.Context) error {
	err := rt.Supervisor.Stop(ctx)
	if rt.Journal != nil {
		if cerr := rt.Journal.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
