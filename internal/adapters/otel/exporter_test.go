package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

func TestNewExporter_Disabled(t *testing.T) {
	if _, err := NewExporter(context.Background(), Config{}); err == nil {
		t.Error("expected error for disabled exporter")
	}
}

func TestExporter_RecordsCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	e, err := newExporter(provider)
	if err != nil {
		t.Fatalf("newExporter failed: %v", err)
	}
	e.RecordSubmission(ctx, "ag-1", "applied")
	e.RecordMerge(ctx, domain.ProducerQuickAdd, "applied")
	e.RecordPromotion(ctx, domain.StatusLead, domain.StatusQuoted, "quote_recorded")
	e.RecordReconcile(ctx, "households", domain.BatchSummary{Processed: 3, Errors: 1})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}

	expected := map[string]int64{
		"salespulse_submissions_total":          1,
		"salespulse_metric_merges_total":        1,
		"salespulse_household_promotions_total": 1,
		"salespulse_reconcile_rows_total":       4,
	}
	for name, want := range expected {
		if totals[name] != want {
			t.Errorf("%s: expected %d, got %d", name, want, totals[name])
		}
	}

	if err := e.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
