package services

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// ErrNoAvailablePort is returned when every port in the range is bound or reserved.
var ErrNoAvailablePort = errors.New("no available port")

// PortChecker reports whether a loopback port can currently be bound.
type PortChecker func(port int) bool

// PortAllocator hands out unbound loopback ports within a range. A port that
// passes the check can still be taken before the launched service binds it;
// that race surfaces later as a launch failure.
type PortAllocator struct {
	mu    sync.Mutex
	rng   PortRange
	next  int
	used  map[int]struct{}
	check PortChecker
}

func NewPortAllocator(r PortRange) *PortAllocator {
	return &PortAllocator{
		rng:   r,
		next:  r.Start,
		used:  make(map[int]struct{}),
		check: loopbackFree,
	}
}

// WithChecker swaps the bind probe; tests use it to simulate a busy host.
func (a *PortAllocator) WithChecker(check PortChecker) *PortAllocator {
	a.mu.Lock()
	a.check = check
	a.mu.Unlock()
	return a
}

func loopbackFree(port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

func (a *PortAllocator) nextInRange(current int) int {
	if current > a.rng.End || current < a.rng.Start {
		return a.rng.Start
	}
	return current
}

// Allocate reserves the next free port, scanning from a rotating cursor.
func (a *PortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	port := a.nextInRange(a.next)
	start := port
	for {
		if _, reserved := a.used[port]; !reserved && a.check(port) {
			a.used[port] = struct{}{}
			a.next = port + 1
			return port, nil
		}
		port = a.nextInRange(port + 1)
		if port == start {
			return 0, fmt.Errorf("%w in range %s", ErrNoAvailablePort, a.rng)
		}
	}
}

// Reserve marks a port as taken. The registry reserves ports of discovered
// services so a later launch does not collide with them.
func (a *PortAllocator) Reserve(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.rng.Contains(port) {
		return fmt.Errorf("port %d outside allocator range %s", port, a.rng)
	}
	if _, exists := a.used[port]; exists {
		return fmt.Errorf("port %d already reserved", port)
	}
	a.used[port] = struct{}{}
	return nil
}

// Release returns a port to the pool.
func (a *PortAllocator) Release(port int) {
	if port <= 0 {
		return
	}
	a.mu.Lock()
	delete(a.used, port)
	if port < a.next {
		a.next = port
	}
	a.mu.Unlock()
}
