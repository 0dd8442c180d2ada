// Package metrics exposes the exit datapath's optional Prometheus
// counters and gauges (§6, §10 of SPEC_FULL.md). Nothing in the datapath
// requires this package: every collaborator that accepts metrics takes
// it through a small interface (session.Counter) and runs fine with a
// nil collector.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "geph4_exit"

// Client is the Prometheus-backed stats collector. It satisfies
// session.Counter's single-method shape (Count(key, value)) so a
// SessionPump can report sampled bandwidth through it without this
// package being a compile-time dependency of internal/session.
type Client struct {
	bandwidth *prometheus.CounterVec

	poolSize    prometheus.Gauge
	poolLeased  prometheus.Gauge
	routeLen    prometheus.Gauge
	failedDraws prometheus.Counter
}

// New builds and registers every collector against prometheus' default
// registry.
func New() *Client {
	c := &Client{
		bandwidth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bandwidth",
			Name:      "sampled_bytes_total",
			Help:      "Sampled bandwidth accounted per stat key (exit_usage.<hostname>)",
		}, []string{"key"}),
		poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "address_pool",
			Name:      "size",
			Help:      "Number of addresses available for lease in the CGNAT pool",
		}),
		poolLeased: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "address_pool",
			Name:      "leased",
			Help:      "Number of addresses currently leased",
		}),
		routeLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "routing",
			Name:      "table_entries",
			Help:      "Number of live entries in the TUN route table",
		}),
		failedDraws: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "address_pool",
			Name:      "failed_draws_total",
			Help:      "Number of address-draw collisions since process start (pool saturation signal)",
		}),
	}
	prometheus.MustRegister(c.bandwidth, c.poolSize, c.poolLeased, c.routeLen, c.failedDraws)
	return c
}

// Count implements the optional collector interface from §6: "an
// optional collector exposing count(key, value)".
func (c *Client) Count(key string, value float64) {
	c.bandwidth.WithLabelValues(key).Add(value)
}

// SetPoolOccupancy records the pool's current size and leased count.
func (c *Client) SetPoolOccupancy(size, leased int) {
	c.poolSize.Set(float64(size))
	c.poolLeased.Set(float64(leased))
}

// SetRouteTableLen records the route table's current entry count.
func (c *Client) SetRouteTableLen(n int) {
	c.routeLen.Set(float64(n))
}

// AddFailedDraws accounts for delta additional saturated-pool retries
// observed since the last call.
func (c *Client) AddFailedDraws(delta uint64) {
	c.failedDraws.Add(float64(delta))
}

// Handler returns the HTTP handler to mount the Prometheus exposition
// endpoint on (§10 AMBIENT STACK of SPEC_FULL.md).
func Handler() http.Handler {
	return promhttp.Handler()
}
