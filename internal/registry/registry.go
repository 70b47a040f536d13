// Package registry owns the believed-active format service endpoint. It
// discovers an already running service or launches one, and keeps checking
// on it for as long as the host runs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"javafmtd/internal/events"
	"javafmtd/internal/health"
	"javafmtd/internal/metrics"
	"javafmtd/internal/persistence"
	"javafmtd/internal/probe"
)

const (
	// DefaultPort is assumed until something has been adopted.
	DefaultPort = 9987
	// DefaultInterval separates the end of one cycle from the start of the next.
	DefaultInterval = 60 * time.Second

	SourceDiscovered = "discovered"
	SourceLaunched   = "launched"

	flightKey = "orchestrate"
)

// Prober finds a running format service.
type Prober interface {
	FindRunning(ctx context.Context) (probe.ProcessRecord, bool, error)
}

// Allocator hands out unused ports.
type Allocator interface {
	Allocate() (int, error)
	Release(port int)
}

// reserver is implemented by allocators that can hold a port taken by a
// service this daemon did not launch.
type reserver interface {
	Reserve(port int) error
}

// Launcher starts a service on port and returns once it is ready.
type Launcher interface {
	Launch(ctx context.Context, port int) error
}

// HealthChecker pings the service on port.
type HealthChecker interface {
	CheckHealth(ctx context.Context, port int) error
}

// Journal records launches and adoptions.
type Journal interface {
	Record(ctx context.Context, rec persistence.LaunchRecord) (persistence.LaunchRecord, error)
}

// Status is a point-in-time view of the registry.
type Status struct {
	Port        int       `json:"port"`
	Running     bool      `json:"running"`
	Initialized bool      `json:"initialized"`
	LastCycleAt time.Time `json:"last_cycle_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Option customises a Registry.
type Option func(*Registry)

func WithInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithInitialPort(port int) Option {
	return func(r *Registry) {
		if port > 0 && port <= 65535 {
			r.port = port
		}
	}
}

func WithHealthChecker(h HealthChecker) Option {
	return func(r *Registry) { r.health = h }
}

func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

func WithMetrics(m metrics.Collector) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithEvents(bus *events.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

func WithTracker(t *health.Tracker) Option {
	return func(r *Registry) { r.tracker = t }
}

// Registry is safe for concurrent use. One instance exists per host process.
type Registry struct {
	prober   Prober
	alloc    Allocator
	launcher Launcher
	health   HealthChecker
	journal  Journal
	metrics  metrics.Collector
	bus      *events.Bus
	tracker  *health.Tracker
	interval time.Duration

	mu          sync.RWMutex
	port        int
	initialized bool
	lastCycleAt time.Time
	lastErr     error

	flight singleflight.Group

	lifeMu  sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a registry. Start must be called for the background loop to run;
// Ensure works without it.
func New(prober Prober, alloc Allocator, launcher Launcher, opts ...Option) *Registry {
	r := &Registry{
		prober:   prober,
		alloc:    alloc,
		launcher: launcher,
		metrics:  metrics.NewNoopCollector(),
		interval: DefaultInterval,
		port:     DefaultPort,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetHealthChecker wires the liveness client. Call before Start.
func (r *Registry) SetHealthChecker(h HealthChecker) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	r.health = h
}

// Name implements supervisor.Component.
func (r *Registry) Name() string { return "format-registry" }

// Endpoint returns the last adopted port.
func (r *Registry) Endpoint() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.port
}

// Status reports the current endpoint and the outcome of the last cycle.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		Port:        r.port,
		Initialized: r.initialized,
		LastCycleAt: r.lastCycleAt,
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	r.lifeMu.Lock()
	st.Running = r.done != nil
	r.lifeMu.Unlock()
	return st
}

// Start returns immediately; initialization and the recurring cycle run in
// the background until Stop.
func (r *Registry) Start(ctx context.Context) error {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.done != nil {
		return nil
	}
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.baseCtx = base
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(base, r.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to return. The
// format service itself keeps running.
func (r *Registry) Stop(ctx context.Context) error {
	r.lifeMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done, r.baseCtx = nil, nil, nil
	r.lifeMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure runs discovery-or-launch, joining an orchestration already in
// flight. Cancelling ctx stops the wait but not the shared orchestration.
func (r *Registry) Ensure(ctx context.Context) error {
	start := time.Now()
	err := r.orchestrate(ctx, r.lifetime(), "ensure")
	r.metrics.RegistryCycle("ensure", time.Since(start), err)
	return err
}

func (r *Registry) lifetime() context.Context {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	if r.baseCtx != nil {
		return r.baseCtx
	}
	return context.Background()
}

func (r *Registry) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	start := time.Now()
	err := r.orchestrate(ctx, ctx, "init")
	r.metrics.RegistryCycle("init", time.Since(start), err)
	r.finishCycle(err)
	if err != nil {
		log.Printf("WARN: format registry init incomplete: %v", err)
	} else {
		log.Printf("INFO: format registry initialized on port %d", r.Endpoint())
	}

	timer := time.NewTimer(r.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.runCycle(ctx)
		// next cycle is armed only once this one has finished
		timer.Reset(r.interval)
	}
}

func (r *Registry) runCycle(ctx context.Context) {
	start := time.Now()
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("registry cycle panic: %v", p)
			log.Printf("ERROR: %v", err)
		}
		r.metrics.RegistryCycle("scheduled", time.Since(start), err)
		r.finishCycle(err)
	}()

	if err = r.orchestrate(ctx, ctx, "scheduled"); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("WARN: format registry cycle failed: %v", err)
	}
	r.checkHealth(ctx)
}

func (r *Registry) finishCycle(err error) {
	r.mu.Lock()
	r.initialized = true
	r.lastCycleAt = time.Now().UTC()
	r.lastErr = err
	r.mu.Unlock()
	if r.tracker == nil {
		return
	}
	if err != nil {
		r.tracker.Setf(health.ComponentRegistry, health.LevelWarn, "last cycle failed: %v", err)
		return
	}
	r.tracker.Setf(health.ComponentRegistry, health.LevelOK, "endpoint %d", r.Endpoint())
}

// orchestrate waits on the shared flight with waitCtx while the flight itself
// runs under runCtx.
func (r *Registry) orchestrate(waitCtx, runCtx context.Context, trigger string) error {
	ch := r.flight.DoChan(flightKey, func() (_ any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("registry %s panic: %v", trigger, p)
				log.Printf("ERROR: %v", err)
			}
		}()
		return nil, r.reconcile(runCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-waitCtx.Done():
		return waitCtx.Err()
	}
}

func (r *Registry) reconcile(ctx context.Context) error {
	rec, found, err := r.prober.FindRunning(ctx)
	if err != nil {
		// discovery failure is treated as "not running"
		log.Printf("WARN: format service discovery failed: %v", err)
		found = false
	}
	if found {
		if port, ok := rec.Port(); ok {
			r.adopt(ctx, port, SourceDiscovered, rec.PID)
			return nil
		}
		log.Printf("WARN: format service pid=%d has no resolvable port; launching a new one", rec.PID)
	}
	return r.launchNew(ctx)
}

func (r *Registry) launchNew(ctx context.Context) error {
	port, err := r.alloc.Allocate()
	if err != nil {
		log.Printf("ERROR: format service port allocation failed: %v", err)
		r.record(ctx, persistence.LaunchRecord{Outcome: persistence.OutcomeNoCapacity, Detail: err.Error()})
		r.setServiceHealth(health.LevelError, "no port available: %v", err)
		return fmt.Errorf("allocate port: %w", err)
	}

	start := time.Now()
	err = r.launcher.Launch(ctx, port)
	took := time.Since(start)
	r.metrics.ServiceLaunch(took, err)
	r.bus.Publish(events.Event{
		Topic:   events.TopicServiceLaunched,
		Payload: events.ServiceLaunched{Port: port, Err: err, Took: took},
	})
	if err != nil {
		r.alloc.Release(port)
		log.Printf("ERROR: format service launch on port %d failed: %v", port, err)
		r.record(ctx, persistence.LaunchRecord{Port: port, Outcome: persistence.OutcomeFailed, Detail: err.Error()})
		r.setServiceHealth(health.LevelError, "launch on port %d failed", port)
		return err
	}
	r.adopt(ctx, port, SourceLaunched, 0)
	return nil
}

func (r *Registry) adopt(ctx context.Context, port int, source string, pid int) {
	r.mu.Lock()
	prev := r.port
	r.port = port
	r.mu.Unlock()

	if prev == port && source == SourceDiscovered {
		return
	}
	if res, ok := r.alloc.(reserver); ok && source == SourceDiscovered {
		// out of range or already held: the allocator skips it either way
		_ = res.Reserve(port)
	}
	r.metrics.EndpointAdopted(port, source)
	r.bus.Publish(events.Event{
		Topic:   events.TopicEndpointChanged,
		Payload: events.EndpointChanged{Previous: prev, Port: port, Source: source, PID: pid},
	})
	outcome := persistence.OutcomeAdopted
	if source == SourceLaunched {
		outcome = persistence.OutcomeLaunched
	}
	r.record(ctx, persistence.LaunchRecord{Port: port, PID: pid, Outcome: outcome, Detail: source})
	r.setServiceHealth(health.LevelOK, "%s on port %d", source, port)
}

func (r *Registry) checkHealth(ctx context.Context) {
	r.lifeMu.Lock()
	checker := r.health
	r.lifeMu.Unlock()
	if checker == nil {
		return
	}
	port := r.Endpoint()
	err := checker.CheckHealth(ctx, port)
	r.metrics.HealthCheck(err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Printf("WARN: format service heartbeat on port %d failed: %v", port, err)
		r.setServiceHealth(health.LevelWarn, "heartbeat on port %d failed", port)
		return
	}
	r.setServiceHealth(health.LevelOK, "serving on port %d", port)
}

func (r *Registry) record(ctx context.Context, rec persistence.LaunchRecord) {
	if r.journal == nil {
		return
	}
	if _, err := r.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("WARN: launch journal write failed: %v", err)
	}
}

func (r *Registry) setServiceHealth(level health.Level, format string, args ...any) {
	if r.tracker == nil {
		return
	}
	r.tracker.Setf(health.ComponentService, level, format, args...)
}
