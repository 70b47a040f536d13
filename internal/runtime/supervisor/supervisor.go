// Package supervisor starts and stops the daemon's long-lived components.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Component represents a unit of work managed by the supervisor.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Supervisor coordinates the lifecycle of registered components.
type Supervisor struct {
	mu         sync.Mutex
	components []Component
	started    []Component
	running    bool
}

// New creates an empty supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Register adds a component. Registration is only allowed before Start.
func (s *Supervisor) Register(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		panic("supervisor: cannot register component after start")
	}
	s.components = append(s.components, c)
}

// Start invokes Start on each component in registration order. If one fails,
// the components already started are stopped in reverse order.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	started := make([]Component, 0, len(s.components))
	for _, c := range s.components {
		begin := time.Now()
		if err := c.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if serr := started[i].Stop(ctx); serr != nil {
					log.Printf("WARN: supervisor: rollback stop %s: %v", started[i].Name(), serr)
				}
			}
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
		log.Printf("INFO: supervisor: %s started in %s", c.Name(), time.Since(begin).Round(time.Millisecond))
		started = append(started, c)
	}
	s.started = started
	s.running = true
	return nil
}

// Stop stops started components in reverse order. Every component is
// stopped even when an earlier one fails; the failures are joined.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	comps := s.started
	s.started = nil
	s.running = false
	s.mu.Unlock()

	var errs []error
	for i := len(comps) - 1; i >= 0; i-- {
		if err := comps[i].Stop(ctx); err != nil {
			log.Printf("WARN: supervisor: stop %s: %v", comps[i].Name(), err)
			errs = append(errs, fmt.Errorf("stop %s: %w", comps[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}
