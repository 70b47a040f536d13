package registry

import (
	"context"
	"log"

	"javafmtd/internal/health"
	"javafmtd/internal/persistence"
	"javafmtd/internal/runtime/commands"
)

const (
	CommandServiceStatus = "service.status"
	CommandServiceEnsure = "service.ensure"
)

// ServiceStatusCommand requests a snapshot of the format service state.
type ServiceStatusCommand struct {
	// JournalLimit bounds the launch history returned; zero uses a default.
	JournalLimit int
}

func (ServiceStatusCommand) Name() string { return CommandServiceStatus }

type ServiceStatusResponse struct {
	Registry Status                     `json:"registry"`
	Health   map[string]health.Status   `json:"health"`
	Overall  health.Level               `json:"overall"`
	Launches []persistence.LaunchRecord `json:"launches"`
}

// ServiceEnsureCommand runs discovery-or-launch and returns the endpoint.
type ServiceEnsureCommand struct{}

func (ServiceEnsureCommand) Name() string { return CommandServiceEnsure }

type ServiceEnsureResponse struct {
	Port int `json:"port"`
}

// JournalReader lists recent journal rows.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]persistence.LaunchRecord, error)
}

// RegisterHandlers wires the service commands into d. tracker and journal may be nil.
func RegisterHandlers(d *commands.Dispatcher, r *Registry, tracker *health.Tracker, journal JournalReader) {
	d.Register(CommandServiceStatus, commands.Typed(func(ctx context.Context, req ServiceStatusCommand) (commands.Response, error) {
		resp := ServiceStatusResponse{
			Registry: r.Status(),
			Health:   map[string]health.Status{},
			Launches: []persistence.LaunchRecord{},
		}
		if tracker != nil {
			resp.Health = tracker.Snapshot()
			resp.Overall = tracker.Overall()
		}
		if journal != nil {
			recs, err := journal.Recent(ctx, req.JournalLimit)
			if err != nil {
				log.Printf("WARN: status: launch journal unavailable: %v", err)
			} else if recs != nil {
				resp.Launches = recs
			}
		}
		return resp, nil
	}))
	d.Register(CommandServiceEnsure, commands.Typed(func(ctx context.Context, _ ServiceEnsureCommand) (commands.Response, error) {
		if err := r.Ensure(ctx); err != nil {
			return nil, err
		}
		return ServiceEnsureResponse{Port: r.Endpoint()}, nil
	}))
}
