// Package metrics records pipeline activity in a Prometheus registry. A
// scraper run pushes its registry to a Pushgateway before exiting; the
// scheduler daemon serves its own at /metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "trinistocks"

// Recorder implements the observer interfaces of the fetch driver, the
// sink, the derivation engine and the scheduler.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	rowsUpserted   *prometheus.CounterVec
	derivations    *prometheus.HistogramVec
	derivationErrs *prometheus.CounterVec
	workerExits    *prometheus.CounterVec
	runs           *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
}

// New creates a recorder with its own registry, including the Go runtime
// and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempts by host and outcome.",
		}, []string{"host", "outcome"}),
		rowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_upserted_total",
			Help:      "Rows written to the store by table.",
		}, []string{"table"}),
		derivations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "derivation_duration_seconds",
			Help:      "Duration of derivation steps.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"step"}),
		derivationErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "derivation_failures_total",
			Help:      "Failed derivation steps.",
		}, []string{"step"}),
		workerExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_exits_total",
			Help:      "Worker process exits by exit code.",
		}, []string{"code"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scraper runs by job and status.",
		}, []string{"job", "status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of a job.",
		}, []string{"job"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.fetchAttempts,
		r.rowsUpserted,
		r.derivations,
		r.derivationErrs,
		r.workerExits,
		r.runs,
		r.lastSuccess,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FetchAttempt counts one fetch attempt.
func (r *Recorder) FetchAttempt(host, outcome string) {
	r.fetchAttempts.WithLabelValues(host, outcome).Inc()
}

// RowsUpserted counts written rows.
func (r *Recorder) RowsUpserted(table string, rows int) {
	r.rowsUpserted.WithLabelValues(table).Add(float64(rows))
}

// DerivationFinished records a derivation step.
func (r *Recorder) DerivationFinished(step string, elapsed time.Duration, _ int, err error) {
	r.derivations.WithLabelValues(step).Observe(elapsed.Seconds())
	if err != nil {
		r.derivationErrs.WithLabelValues(step).Inc()
	}
}

// WorkerExited counts a worker process exit.
func (r *Recorder) WorkerExited(code int) {
	r.workerExits.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RunFinished records the outcome of a job run.
func (r *Recorder) RunFinished(job string, err error) {
	if err != nil {
		r.runs.WithLabelValues(job, "failed").Inc()
		return
	}
	r.runs.WithLabelValues(job, "ok").Inc()
	r.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Push replaces the metrics of job on the Pushgateway at url.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
