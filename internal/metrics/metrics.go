// Package metrics exposes a Prometheus registry tracking block production,
// transaction outcomes, mempool occupancy and sandbox fuel consumption for
// one embedded BaaLS node.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Collector owns a private registry so multiple embedded nodes in the same
// process never collide on metric names.
type Collector struct {
	registry *prometheus.Registry

	blocksProduced        prometheus.Counter
	transactionsApplied   prometheus.Counter
	transactionsReverted  prometheus.Counter
	transactionsIncluded  prometheus.Counter
	mempoolSize           prometheus.Gauge
	sandboxFuelConsumed   prometheus.Counter
}

// NewCollector builds a Collector with all metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		blocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baals_blocks_produced_total",
			Help: "Total number of blocks committed by this node, whether produced locally or applied from outside.",
		}),
		transactionsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baals_transactions_applied_total",
			Help: "Total number of transactions successfully applied to the ledger.",
		}),
		transactionsReverted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baals_transactions_reverted_total",
			Help: "Total number of transactions that reverted during application.",
		}),
		transactionsIncluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baals_transactions_included_total",
			Help: "Total number of transactions included in produced or applied blocks.",
		}),
		mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "baals_mempool_size",
			Help: "Number of transactions currently queued in the mempool.",
		}),
		sandboxFuelConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baals_sandbox_fuel_consumed_total",
			Help: "Total WASM fuel consumed across all contract executions.",
		}),
	}
	reg.MustRegister(
		c.blocksProduced,
		c.transactionsApplied,
		c.transactionsReverted,
		c.transactionsIncluded,
		c.mempoolSize,
		c.sandboxFuelConsumed,
	)
	return c
}

// ObserveBlockProduced records a committed block, produced locally or
// applied from outside, carrying txCount transactions.
func (c *Collector) ObserveBlockProduced(txCount int) {
	if c == nil {
		return
	}
	c.blocksProduced.Inc()
	c.transactionsIncluded.Add(float64(txCount))
}

// ObserveTransactionApplied records one transaction that changed ledger
// state without reverting.
func (c *Collector) ObserveTransactionApplied() {
	if c == nil {
		return
	}
	c.transactionsApplied.Inc()
}

// ObserveTransactionReverted records one transaction that reverted: a
// transfer with insufficient balance, or a call or deployment whose
// execution reverted, trapped or ran out of fuel.
func (c *Collector) ObserveTransactionReverted() {
	if c == nil {
		return
	}
	c.transactionsReverted.Inc()
}

// ObserveSandboxFuel adds used to the running total of WASM fuel consumed.
func (c *Collector) ObserveSandboxFuel(used uint64) {
	if c == nil {
		return
	}
	c.sandboxFuelConsumed.Add(float64(used))
}

// SetMempoolSize reports the current number of queued transactions.
func (c *Collector) SetMempoolSize(n int) {
	if c == nil {
		return
	}
	c.mempoolSize.Set(float64(n))
}

// Handler returns the HTTP handler serving this Collector's metrics in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer exposes this Collector's metrics on addr and returns the
// underlying http.Server so callers may manage its lifecycle with Shutdown.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).WithField("component", "metrics").Error("metrics server stopped")
		}
	}()
	return srv
}

// Shutdown gracefully stops a server started by StartServer.
func (c *Collector) Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
