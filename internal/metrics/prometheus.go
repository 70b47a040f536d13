package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements Collector on a private registry.
type PrometheusCollector struct {
	cycles         *prometheus.HistogramVec
	launches       *prometheus.HistogramVec
	adoptions      *prometheus.CounterVec
	endpoint       prometheus.Gauge
	healthChecks   *prometheus.CounterVec
	formatRequests *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewPrometheusCollector creates a collector under namespace ("javafmtd" when empty).
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	if namespace == "" {
		namespace = "javafmtd"
	}
	pc := &PrometheusCollector{registry: prometheus.NewRegistry()}

	pc.cycles = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_cycle_duration_seconds",
			Help:      "Duration of registry orchestration passes",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"trigger", "status"},
	)
	pc.launches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_launch_duration_seconds",
			Help:      "Time from spawn until the format service reported readiness",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"status"},
	)
	pc.adoptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_adoptions_total",
			Help:      "Total number of adopted format service endpoints",
		},
		[]string{"source"},
	)
	pc.endpoint = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoint_port",
			Help:      "Port of the currently believed-active format service",
		},
	)
	pc.healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Total number of format service liveness requests",
		},
		[]string{"status"},
	)
	pc.formatRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "format_request_duration_seconds",
			Help:      "Duration of editor format requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode", "status"},
	)

	pc.registry.MustRegister(
		pc.cycles,
		pc.launches,
		pc.adoptions,
		pc.endpoint,
		pc.healthChecks,
		pc.formatRequests,
	)
	return pc
}

func (pc *PrometheusCollector) RegistryCycle(trigger string, duration time.Duration, err error) {
	pc.cycles.WithLabelValues(trigger, statusLabel(err)).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) ServiceLaunch(duration time.Duration, err error) {
	pc.launches.WithLabelValues(statusLabel(err)).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) EndpointAdopted(port int, source string) {
	pc.adoptions.WithLabelValues(source).Inc()
	pc.endpoint.Set(float64(port))
}

func (pc *PrometheusCollector) HealthCheck(err error) {
	pc.healthChecks.WithLabelValues(statusLabel(err)).Inc()
}

func (pc *PrometheusCollector) FormatRequest(mode string, duration time.Duration, err error) {
	pc.formatRequests.WithLabelValues(mode, statusLabel(err)).Observe(duration.Seconds())
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pc *PrometheusCollector) Registry() *prometheus.Registry {
	return pc.registry
}

// Handler serves the collector's registry in the exposition format.
func (pc *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

var _ Collector = (*PrometheusCollector)(nil)
