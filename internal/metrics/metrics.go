// Package metrics records registry and formatting activity.
package metrics

import (
	"time"
)

// Collector receives lifecycle and request observations.
type Collector interface {
	// RegistryCycle records one orchestration pass (init, ensure or scheduled).
	RegistryCycle(trigger string, duration time.Duration, err error)

	// ServiceLaunch records a launch attempt.
	ServiceLaunch(duration time.Duration, err error)

	// EndpointAdopted records the newly believed-active port and how it was found.
	EndpointAdopted(port int, source string)

	// HealthCheck records the outcome of a liveness request.
	HealthCheck(err error)

	// FormatRequest records one editor-facing format call.
	FormatRequest(mode string, duration time.Duration, err error)
}

type noopCollector struct{}

func (noopCollector) RegistryCycle(string, time.Duration, error) {}
func (noopCollector) ServiceLaunch(time.Duration, error) {}
func (noopCollector) EndpointAdopted(int, string) {}
func (noopCollector) HealthCheck(error) {}
func (noopCollector) FormatRequest(string, time.Duration, error) {}

// NewNoopCollector returns a Collector that discards everything.
func NewNoopCollector() Collector {
	return noopCollector{}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
