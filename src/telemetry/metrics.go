// Package telemetry exports prometheus metrics for the run-state machine and
// the HTTP service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mosaicnetworks/runstate/src/runstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "runstate"

var (
	Registry = prometheus.NewRegistry()

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events fed to the state machine, by kind.",
		},
		[]string{"kind"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands emitted by the state machine, by kind.",
		},
		[]string{"kind"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Status changes, by previous and next status.",
		},
		[]string{"from", "to"},
	)

	Status = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Current status (1 for the active one, 0 otherwise).",
		},
		[]string{"status"},
	)

	ConnectedPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Size of the connected peer set.",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		EventsTotal,
		CommandsTotal,
		TransitionsTotal,
		Status,
		ConnectedPeers,
		RequestsTotal,
		RequestDuration,
		buildInfo,
		uptime,
	)
	SetStatus(runstate.Stopped{})
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// SetStatus flips the one-hot status gauge to s.
func SetStatus(s runstate.Status) {
	current := runstate.StatusName(s)
	for _, name := range runstate.StatusNames {
		v := 0.0
		if name == current {
			v = 1
		}
		Status.WithLabelValues(name).Set(v)
	}
}

// ObserveTransition records one call to RunState.Transition.
func ObserveTransition(from, to runstate.Status, ev runstate.Event, cmds []runstate.Command, connected int) {
	EventsTotal.WithLabelValues(ev.Kind()).Inc()
	for _, c := range cmds {
		CommandsTotal.WithLabelValues(c.Kind()).Inc()
	}

	fromName, toName := runstate.StatusName(from), runstate.StatusName(to)
	if fromName != toName {
		TransitionsTotal.WithLabelValues(fromName, toName).Inc()
		SetStatus(to)
	}

	ConnectedPeers.Set(float64(connected))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op"
// label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
