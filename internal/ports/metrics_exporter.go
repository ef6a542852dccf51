package ports

import (
	"context"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

// Outcome labels for exported counters.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// MetricsExporter exports pipeline outcomes to an external observability system.
type MetricsExporter interface {
	RecordSubmission(ctx context.Context, agencyID, outcome string)
	RecordMerge(ctx context.Context, producer domain.Producer, outcome string)
	RecordPromotion(ctx context.Context, from, to domain.HouseholdStatus, cause string)
	RecordReconcile(ctx context.Context, sweep string, summary domain.BatchSummary)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
