// Package prometheus exposes pipeline outcomes as Prometheus counters for
// scraping on /metrics.
package prometheus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

// Exporter registers the pipeline counters on a Prometheus registry.
type Exporter struct {
	submissionsTotal *prometheus.CounterVec
	mergesTotal      *prometheus.CounterVec
	promotionsTotal  *prometheus.CounterVec
	reconcileTotal   *prometheus.CounterVec
}

// NewExporter creates the counters and registers them on reg.
func NewExporter(reg prometheus.Registerer) (*Exporter, error) {
	e := &Exporter{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespulse_submissions_total",
			Help: "Scorecard submissions processed by outcome.",
		}, []string{"agency_id", "outcome"}),
		mergesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespulse_metric_merges_total",
			Help: "Daily metric merges by producer and outcome.",
		}, []string{"producer", "outcome"}),
		promotionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespulse_household_promotions_total",
			Help: "Household status promotions.",
		}, []string{"from", "to", "cause"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "salespulse_reconcile_rows_total",
			Help: "Rows handled by reconciliation sweeps.",
		}, []string{"sweep", "result"}),
	}

	for _, c := range []prometheus.Collector{e.submissionsTotal, e.mergesTotal, e.promotionsTotal, e.reconcileTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Exporter) RecordSubmission(_ context.Context, agencyID, outcome string) {
	e.submissionsTotal.WithLabelValues(agencyID, outcome).Inc()
}

func (e *Exporter) RecordMerge(_ context.Context, producer domain.Producer, outcome string) {
	e.mergesTotal.WithLabelValues(string(producer), outcome).Inc()
}

func (e *Exporter) RecordPromotion(_ context.Context, from, to domain.HouseholdStatus, cause string) {
	e.promotionsTotal.WithLabelValues(string(from), string(to), cause).Inc()
}

func (e *Exporter) RecordReconcile(_ context.Context, sweep string, s domain.BatchSummary) {
	add := func(result string, n int) {
		if n == 0 {
			return
		}
		e.reconcileTotal.WithLabelValues(sweep, result).Add(float64(n))
	}
	add("processed", s.Processed)
	add("skipped", s.Skipped)
	add("error", s.Errors)
}

// Close is a no-op; the registry is scraped, not pushed.
func (e *Exporter) Close(context.Context) error {
	return nil
}

