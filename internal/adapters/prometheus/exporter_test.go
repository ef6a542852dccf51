package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

var _ ports.MetricsExporter = (*Exporter)(nil)

func TestExporter_RecordsCounters(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	e, err := NewExporter(reg)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}

	e.RecordSubmission(ctx, "ag-1", ports.OutcomeApplied)
	e.RecordSubmission(ctx, "ag-1", ports.OutcomeApplied)
	e.RecordMerge(ctx, domain.ProducerQuickAdd, ports.OutcomeSkipped)
	e.RecordPromotion(ctx, domain.StatusLead, domain.StatusQuoted, "quote_recorded")
	e.RecordReconcile(ctx, "households", domain.BatchSummary{Processed: 3, Errors: 1})

	if got := testutil.ToFloat64(e.submissionsTotal.WithLabelValues("ag-1", ports.OutcomeApplied)); got != 2 {
		t.Errorf("expected 2 submissions, got %v", got)
	}
	if got := testutil.ToFloat64(e.mergesTotal.WithLabelValues("quick_add", ports.OutcomeSkipped)); got != 1 {
		t.Errorf("expected 1 merge, got %v", got)
	}
	if got := testutil.ToFloat64(e.reconcileTotal.WithLabelValues("households", "processed")); got != 3 {
		t.Errorf("expected 3 processed rows, got %v", got)
	}
	// Zero counts add no series.
	if got := testutil.CollectAndCount(e.reconcileTotal); got != 2 {
		t.Errorf("expected 2 reconcile series, got %d", got)
	}
}

func TestNewExporter_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewExporter(reg); err != nil {
		t.Fatalf("first NewExporter failed: %v", err)
	}
	if _, err := NewExporter(reg); err == nil {
		t.Error("expected an error registering the counters twice")
	}
}
