// Package commands routes typed requests from the HTTP API and the CLI to
// the component that owns them.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrInvalidCommand is returned when a handler receives a payload of the wrong type.
	ErrInvalidCommand = errors.New("commands: invalid command payload")
	// ErrUnknownCommand is returned when nothing is registered under a command name.
	ErrUnknownCommand = errors.New("commands: unknown command")
)

// Command is a request addressed by name.
type Command interface {
	Name() string
}

type Response any

type Handler interface {
	Handle(ctx context.Context, cmd Command) (Response, error)
}

type HandlerFunc func(ctx context.Context, cmd Command) (Response, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd Command) (Response, error) {
	return f(ctx, cmd)
}

// Typed adapts fn to a Handler that asserts the command type first.
func Typed[C Command](fn func(ctx context.Context, cmd C) (Response, error)) Handler {
	return HandlerFunc(func(ctx context.Context, cmd Command) (Response, error) {
		typed, ok := cmd.(C)
		if !ok {
			return nil, fmt.Errorf("%w: %s got %T", ErrInvalidCommand, cmd.Name(), cmd)
		}
		return fn(ctx, typed)
	})
}

// Middleware wraps every dispatch; it may short-circuit by not calling next.
type Middleware func(ctx context.Context, cmd Command, next Handler) (Response, error)

// Dispatcher maps command names to handlers. Registration usually happens
// during startup but is safe at any time.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   map[string]Handler
	middleware []Middleware
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds name to h. A second registration for the same name panics.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.handlers[name]; dup {
		panic(fmt.Sprintf("commands: %s registered twice", name))
	}
	d.handlers[name] = h
}

// Use appends m. Middleware registered first runs outermost.
func (d *Dispatcher) Use(m Middleware) {
	d.mu.Lock()
	d.middleware = append(d.middleware, m)
	d.mu.Unlock()
}

// Names lists registered commands in sorted order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	d.mu.RLock()
	h, ok := d.handlers[cmd.Name()]
	chain := d.middleware
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, cmd.Name())
	}

	for i := len(chain) - 1; i >= 0; i-- {
		h = wrap(chain[i], h)
	}
	return h.Handle(ctx, cmd)
}

func wrap(m Middleware, next Handler) Handler {
	return HandlerFunc(func(ctx context.Context, cmd Command) (Response, error) {
		return m(ctx, cmd, next)
	})
}
