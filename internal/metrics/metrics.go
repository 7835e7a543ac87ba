// Package metrics exposes prometheus instrumentation for the connection
// manager: firewall command execution, leak probes and connection lifecycle.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all Linkage metrics.
type Registry struct {
	// Firewall metrics
	FirewallCommands *prometheus.CounterVec
	FirewallErrors   *prometheus.CounterVec

	// Leak detection metrics
	ProbesTotal   *prometheus.CounterVec
	ProbeErrors   *prometheus.CounterVec
	LeaksDetected *prometheus.CounterVec

	// Connection lifecycle
	ConnectionState    prometheus.Gauge
	ConnectAttempts    *prometheus.CounterVec
	InterfaceWaitSecs  prometheus.Histogram
	SnapshotDurationMs prometheus.Histogram
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.FirewallCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_firewall_commands_total",
		Help: "Total filter-management commands issued",
	}, []string{"binary", "result"})

	r.FirewallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_firewall_errors_total",
		Help: "Total firewall command failures",
	}, []string{"binary", "kind"})

	r.ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_leak_probes_total",
		Help: "Total leak-detection probes executed",
	}, []string{"strategy", "result"})

	r.ProbeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_leak_probe_errors_total",
		Help: "Total leak-detection probe failures",
	}, []string{"strategy"})

	r.LeaksDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_leaks_detected_total",
		Help: "Leaks detected during post-connect verification",
	}, []string{"kind"})

	r.ConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkage_connection_state",
		Help: "Current connection lifecycle state (numeric)",
	})

	r.ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkage_connect_attempts_total",
		Help: "Connection attempts by outcome",
	}, []string{"outcome"})

	r.InterfaceWaitSecs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkage_interface_wait_seconds",
		Help:    "Time spent waiting for the tunnel interface announcement",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	r.SnapshotDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkage_snapshot_duration_ms",
		Help:    "Duration of leak snapshots in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 2, 10),
	})

	return r
}
