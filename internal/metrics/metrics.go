// Package metrics exposes the aggregator's internal counters as Prometheus
// collectors, the selfstat-style instrumentation point of the daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge this daemon updates in its hot paths.
type Registry struct {
	reg *prometheus.Registry

	PacketsReceived  prometheus.Counter
	LinesRejected    prometheus.Counter
	SegmentsRejected prometheus.Counter
	PacketsSent      prometheus.Counter
	FlushWindows     prometheus.Counter
	CapacityLosses   prometheus.Counter
	SocketRotations  prometheus.Counter
	MembershipStale  prometheus.Counter
	LiveHosts        prometheus.Gauge
}

// New builds a Registry with every metric registered under the "statsdagg"
// namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		reg: reg,
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "packets_received_total",
			Help: "UDP datagrams received on the ingest socket.",
		}),
		LinesRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "lines_rejected_total",
			Help: "Ingest lines rejected for malformed length or missing colon.",
		}),
		SegmentsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "segments_rejected_total",
			Help: "Metric segments rejected due to parse errors or type conflicts.",
		}),
		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "packets_sent_total",
			Help: "Datagrams sent to a downstream host.",
		}),
		FlushWindows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "flush_windows_total",
			Help: "Flush windows sealed into the ring.",
		}),
		CapacityLosses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "capacity_losses_total",
			Help: "Flush windows dropped because the ring had not drained.",
		}),
		SocketRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "socket_rotations_total",
			Help: "Egress UDP socket replacements after MAX_PACKETS_PER_SOCKET sends.",
		}),
		MembershipStale: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "statsdagg", Name: "membership_stale_total",
			Help: "Flush attempts made with zero live downstream hosts.",
		}),
		LiveHosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "statsdagg", Name: "live_hosts",
			Help: "Number of downstream hosts currently marked alive.",
		}),
	}
}

// Handler returns the HTTP handler serving this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
