package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guestexec",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Number of dispatched guest operations by opcode and status code.",
		}, []string{"op", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guestexec",
			Subsystem: "dispatch",
			Name:      "request_duration_seconds",
			Help:      "Handler execution time by opcode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"},
	)
	asyncProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guestexec",
			Subsystem: "run",
			Name:      "async_processes",
			Help:      "Launched programs whose poll monitor is still armed.",
		},
	)
	programStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guestexec",
			Subsystem: "run",
			Name:      "program_starts_total",
			Help:      "Number of successful program launches by kind (run, start, script).",
		}, []string{"kind"},
	)
	registrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guestexec",
			Subsystem: "registry",
			Name:      "records",
			Help:      "Records currently held by the exited-process registry.",
		},
	)
	registryReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guestexec",
			Subsystem: "registry",
			Name:      "reaped_total",
			Help:      "Exited-process records dropped after the retention window.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{requestsTotal, requestDuration, asyncProcesses, programStarts, registrySize, registryReaped}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// Already registered is fine; keep the existing collector.
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncRequest(op, status string) {
	if regOK.Load() {
		requestsTotal.WithLabelValues(op, status).Inc()
	}
}

func ObserveRequestDuration(op string, seconds float64) {
	if regOK.Load() {
		requestDuration.WithLabelValues(op).Observe(seconds)
	}
}

func IncProgramStart(kind string) {
	if regOK.Load() {
		programStarts.WithLabelValues(kind).Inc()
	}
}

func AddAsyncProcesses(delta int) {
	if regOK.Load() {
		asyncProcesses.Add(float64(delta))
	}
}

func SetRegistrySize(n int) {
	if regOK.Load() {
		registrySize.Set(float64(n))
	}
}

func AddReaped(n int) {
	if regOK.Load() && n > 0 {
		registryReaped.Add(float64(n))
	}
}
