// Package metrics implements ports.Metrics with Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/docship/internal/domain"
	"github.com/bft-labs/docship/internal/ports"
)

const namespace = "docship"

// Prometheus records pipeline metrics in its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	batches         prometheus.Counter
	batchItems      prometheus.Histogram
	batchBytes      prometheus.Histogram
	requestDuration prometheus.Histogram
	outcomes        *prometheus.CounterVec
	retries         prometheus.Counter
	waitTimeouts    *prometheus.CounterVec
	pending         prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them, together with the
// Go runtime and process collectors, in a fresh registry.
func NewPrometheus() (*Prometheus, error) {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_requests_total",
			Help:      "Total number of bulk requests sent",
		}),
		batchItems: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_items",
			Help:      "Number of operations per bulk request",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
		}),
		batchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_bytes",
			Help:      "Approximate size of each bulk request body",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to 16MB
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_request_duration_seconds",
			Help:      "Duration of bulk requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Terminal operation outcomes by class",
		}, []string{"class"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Operations scheduled for another attempt",
		}),
		waitTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Bounded waits for capacity that expired",
		}, []string{"resource"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Operations waiting to be dispatched",
		}),
	}

	collectors := []prometheus.Collector{
		p.batches, p.batchItems, p.batchBytes, p.requestDuration,
		p.outcomes, p.retries, p.waitTimeouts, p.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "register collector")
		}
	}
	return p, nil
}

var _ ports.Metrics = (*Prometheus)(nil)

func (p *Prometheus) BatchSent(items, bytes int, took time.Duration) {
	p.batches.Inc()
	p.batchItems.Observe(float64(items))
	p.batchBytes.Observe(float64(bytes))
	p.requestDuration.Observe(took.Seconds())
}

func (p *Prometheus) Outcome(class domain.OutcomeClass) {
	p.outcomes.WithLabelValues(class.String()).Inc()
}

func (p *Prometheus) Retry() { p.retries.Inc() }

func (p *Prometheus) PoolWaitTimeout(resource string) {
	p.waitTimeouts.WithLabelValues(resource).Inc()
}

func (p *Prometheus) Pending(n int) { p.pending.Set(float64(n)) }

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (p *Prometheus) Serve(ctx context.Context, addr string, logger ports.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics server listening", ports.String("addr", addr))

	select {
	case err := <-errCh:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
