package server

import (
	"context"
	"log"

	"javafmtd/internal/events"
	"javafmtd/internal/health"
	"javafmtd/internal/runtime/supervisor"
)

// newEventObserver registers a supervisor component that logs registry
// events and keeps the formatting health component current.
func newEventObserver(bus *events.Bus, tracker *health.Tracker) supervisor.Component {
	observer := &eventObserver{bus: bus, tracker: tracker}
	return supervisor.NewComponent("event-observer", observer.start, observer.stop)
}

type eventObserver struct {
	bus     *events.Bus
	tracker *health.Tracker
	cancel  context.CancelFunc
	done    chan struct{}
}

func (o *eventObserver) start(ctx context.Context) error {
	if o.bus == nil {
		return nil
	}
	endpoints := o.bus.Subscribe(events.TopicEndpointChanged, 16)
	launched := o.bus.Subscribe(events.TopicServiceLaunched, 16)
	served := o.bus.Subscribe(events.TopicFormatServed, 64)
	failed := o.bus.Subscribe(events.TopicFormatFailed, 64)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		for {
			var (
				evt events.Event
				ok  bool
			)
			select {
			case evt, ok = <-endpoints:
			case evt, ok = <-launched:
			case evt, ok = <-served:
			case evt, ok = <-failed:
			case <-runCtx.Done():
				return
			}
			if !ok {
				return
			}
			o.handle(evt)
		}
	}()
	return nil
}

func (o *eventObserver) handle(evt events.Event) {
	switch payload := evt.Payload.(type) {
	case events.EndpointChanged:
		log.Printf("INFO: format service endpoint %d -> %d (%s pid=%d)", payload.Previous, payload.Port, payload.Source, payload.PID)
	case events.ServiceLaunched:
		if payload.Err != nil {
			log.Printf("WARN: format service launch port=%d took=%s failed: %v", payload.Port, payload.Took, payload.Err)
			return
		}
		log.Printf("INFO: format service launched port=%d took=%s", payload.Port, payload.Took)
	case events.FormatServed:
		o.tracker.Setf(health.ComponentFormat, health.LevelOK, "last %s format of %s succeeded", payload.Mode, payload.URI)
	case events.FormatFailed:
		o.tracker.Setf(health.ComponentFormat, health.LevelWarn, "last format of %s failed: %s", payload.URI, payload.Reason)
	default:
		log.Printf("WARN: event-observer received unexpected payload on %s: %#v", evt.Topic, evt.Payload)
	}
}

func (o *eventObserver) stop(ctx context.Context) error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	select {
	case <-o.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
