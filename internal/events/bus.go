package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic enumerates bus channels shared across javafmtd subsystems.
type Topic string

const (
	TopicEndpointChanged Topic = "endpoint_changed"
	TopicServiceLaunched Topic = "service_launched"
	TopicFormatServed    Topic = "format_served"
	TopicFormatFailed    Topic = "format_failed"
)

// Event represents a message broadcast on the event bus.
type Event struct {
	Topic   Topic
	Payload any
}

// EndpointChanged announces a newly adopted format service port.
type EndpointChanged struct {
	Previous int
	Port     int
	Source   string // "discovered" or "launched"
	PID      int
}

// ServiceLaunched reports the outcome of a launch attempt.
type ServiceLaunched struct {
	Port int
	Err  error
	Took time.Duration
}

// FormatServed is published after an editor request produced edits.
type FormatServed struct {
	URI  string
	Mode string
	Took time.Duration
}

// FormatFailed is published when an editor request could not be served.
type FormatFailed struct {
	URI    string
	Reason string
}

// Bus fans events out to per-topic subscriber channels. Publishing never
// blocks: a full subscriber misses the event and Dropped counts it.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Topic][]chan Event
	closed  bool
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]chan Event)}
}

// Subscribe returns a channel receiving topic events, buffered to buffer.
// After Close it returns an already closed channel.
func (b *Bus) Subscribe(topic Topic, buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
	} else {
		b.subs[topic] = append(b.subs[topic], ch)
	}
	return ch
}

// Publish delivers evt to the topic's subscribers. A nil Bus ignores it.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close closes every subscriber channel. Further publishes are ignored.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
		delete(b.subs, topic)
	}
}
