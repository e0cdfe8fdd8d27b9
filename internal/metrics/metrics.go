package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostproxy_dispatch_total",
			Help: "Total number of dispatched requests by outcome",
		},
		[]string{"outcome"},
	)
	ProbeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostproxy_probe_total",
			Help: "Total number of upstream liveness probes by result",
		},
		[]string{"result"},
	)
	ProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hostproxy_probe_duration_seconds",
			Help:    "Latency of upstream liveness probes",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)
	HandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostproxy_handler_failures_total",
			Help: "Total number of local handler invocations that failed",
		},
		[]string{"handler"},
	)
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hostproxy_refresh_total",
			Help: "Total number of route table refresh attempts by result",
		},
		[]string{"result"},
	)
	RouteTableGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hostproxy_route_table_generation",
			Help: "Generation number of the route table currently in effect",
		},
	)
	RouteEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hostproxy_route_entries",
			Help: "Number of configured route entries by kind",
		},
		[]string{"kind"},
	)
)

// Register adds every hostproxy collector to reg. A nil reg means the
// default Prometheus registry.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		DispatchTotal,
		ProbeTotal,
		ProbeDuration,
		HandlerFailures,
		RefreshTotal,
		RouteTableGeneration,
		RouteEntries,
	)
}
