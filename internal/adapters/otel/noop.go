package otel

import (
	"context"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordSubmission(context.Context, string, string) {}
func (e *NoOpExporter) RecordMerge(context.Context, domain.Producer, string) {}
func (e *NoOpExporter) RecordPromotion(context.Context, domain.HouseholdStatus, domain.HouseholdStatus, string) {}
func (e *NoOpExporter) RecordReconcile(context.Context, string, domain.BatchSummary) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
