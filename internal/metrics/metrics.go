// Package metrics exposes the Prometheus counters and gauges the
// concurrency harness and trade sink update on the hot path. Grounded on
// the manager-level Prometheus wiring in the retrieved
// mselser95/polymarket-arb orderbook manager: a handful of package-level
// collectors constructed once and registered against an injected
// prometheus.Registerer, rather than a metrics framework.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters the core updates. All are safe for
// concurrent use, as is every prometheus.Collector.
type Metrics struct {
	TradesMatched  prometheus.Counter
	OrdersRejected prometheus.Counter
	SinkSaturated  prometheus.Counter
	SinkDepth      prometheus.Gauge
}

// New constructs and registers the core's collectors against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer) keeps
// tests from colliding on re-registration across cases.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TradesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "trades_matched_total",
			Help:      "Number of trades produced by the matching kernel.",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "orders_rejected_total",
			Help:      "Number of orders rejected as invalid before any state change.",
		}),
		SinkSaturated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "sink_saturated_total",
			Help:      "Number of trades dropped from the sink queue under the drop-oldest policy.",
		}),
		SinkDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchcore",
			Name:      "sink_queue_depth",
			Help:      "Current number of trades queued in the sink awaiting durable write.",
		}),
	}
	reg.MustRegister(m.TradesMatched, m.OrdersRejected, m.SinkSaturated, m.SinkDepth)
	return m
}
