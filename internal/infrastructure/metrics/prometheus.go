// Package metrics exports ingestion counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PropertyScanner/internal/domain"
	"PropertyScanner/internal/ports"
)

const namespace = "propertyscanner"

// Prometheus records ingestion results on its own registry.
type Prometheus struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	runs     prometheus.Histogram
}

var _ ports.Metrics = (*Prometheus)(nil)

// NewPrometheus registers the ingestion collectors plus the Go runtime and
// process collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Records handled per source and outcome.",
		}, []string{"source", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Errors captured per source.",
		}, []string{"source"}),
		runs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_run_seconds",
			Help:      "Wall-clock duration of ingestion runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
	}
	p.registry.MustRegister(
		p.records,
		p.errors,
		p.runs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveResult adds one source's counts.
func (p *Prometheus) ObserveResult(res domain.IngestionResult) {
	p.records.WithLabelValues(res.Source, "created").Add(float64(res.Created))
	p.records.WithLabelValues(res.Source, "updated").Add(float64(res.Updated))
	p.records.WithLabelValues(res.Source, "skipped").Add(float64(res.Skipped))
	p.errors.WithLabelValues(res.Source).Add(float64(len(res.Errors)))
}

// ObserveRun records a run's duration.
func (p *Prometheus) ObserveRun(elapsed time.Duration) {
	p.runs.Observe(elapsed.Seconds())
}

// Registry exposes the collectors, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (p *Prometheus) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info("metrics endpoint listening", "addr", addr)
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics: %w", err)
		}
		return nil
	}
}
