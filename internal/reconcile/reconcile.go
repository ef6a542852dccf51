// Package reconcile holds the standalone correction sweeps for household
// state. Both sweeps derive their decisions from stored facts only, so they
// can run at any time and any number of times.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// Sweep names used for exported counters.
const (
	SweepHouseholds = "households"
	SweepGhosts     = "ghosts"
)

// Promoter applies forward-only household promotions.
type Promoter interface {
	Promote(ctx context.Context, req household.PromoteRequest) (*household.PromoteResult, error)
}

// Reconciler runs the correction sweeps.
type Reconciler struct {
	store    ports.Store
	promoter Promoter
	exporter ports.MetricsExporter
	logger   *slog.Logger
}

// New creates a reconciler.
func New(store ports.Store, promoter Promoter, exporter ports.MetricsExporter, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, promoter: promoter, exporter: exporter, logger: logger}
}

// PromoteStale promotes every household whose status is below what its
// linked facts imply, backfilling the first-quote and sold dates from the
// earliest facts. An empty agencyID sweeps every agency. The quoted count
// is not credited: the sweep repairs status, not metrics.
func (r *Reconciler) PromoteStale(ctx context.Context, agencyID string) (domain.BatchSummary, error) {
	var summary domain.BatchSummary

	stale, err := r.store.Repos().Households.ListStale(ctx, agencyID)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale households: %w", err)
	}

	for _, h := range stale {
		changed, err := r.promoteOne(ctx, h)
		if err != nil {
			r.logger.Warn("failed to reconcile household",
				slog.String("household_id", h.ID),
				slog.String("error", err.Error()),
			)
			summary.Errors++
			continue
		}
		if changed {
			summary.Processed++
		} else {
			summary.Skipped++
		}
	}

	r.exporter.RecordReconcile(ctx, SweepHouseholds, summary)
	r.logger.Info("household reconciliation complete",
		slog.String("agency_id", agencyID),
		slog.Int("promoted", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)
	return summary, nil
}

func (r *Reconciler) promoteOne(ctx context.Context, h *domain.Household) (bool, error) {
	counts, err := r.store.Repos().Facts.Counts(ctx, h.ID)
	if err != nil {
		return false, err
	}

	changed := false
	steps := []struct {
		has      bool
		earliest *time.Time
		target   domain.HouseholdStatus
	}{
		{counts.Quotes > 0, counts.EarliestQuote, domain.StatusQuoted},
		{counts.Sales > 0, counts.EarliestSale, domain.StatusSold},
	}
	for _, step := range steps {
		if !step.has || step.earliest == nil {
			continue
		}
		res, err := r.promoter.Promote(ctx, household.PromoteRequest{
			HouseholdID:          h.ID,
			Target:               step.target,
			On:                   *step.earliest,
			Cause:                household.CauseReconcile,
			SkipMetricsIncrement: true,
		})
		if err != nil {
			return changed, err
		}
		changed = changed || res.Changed
	}
	return changed, nil
}

// PurgeGhosts deletes lead households with no linked facts created before
// cutoff. A zero cutoff means now. Each deletion re-checks the household
// inside its own transaction so a fact written since the listing saves it.
func (r *Reconciler) PurgeGhosts(ctx context.Context, agencyID string, cutoff time.Time) (domain.BatchSummary, error) {
	var summary domain.BatchSummary
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	ghosts, err := r.store.Repos().Households.ListGhosts(ctx, agencyID, cutoff)
	if err != nil {
		return summary, fmt.Errorf("failed to list ghost households: %w", err)
	}

	for _, g := range ghosts {
		deleted := false
		err := r.store.WithinTx(ctx, func(repos *ports.Repositories) error {
			h, err := repos.Households.GetByID(ctx, g.ID)
			if err != nil || h == nil {
				return err
			}
			counts, err := repos.Facts.Counts(ctx, h.ID)
			if err != nil {
				return err
			}
			if !h.IsGhost(counts.Quotes, counts.Sales) {
				return nil
			}
			if err := repos.Households.Delete(ctx, h.ID); err != nil {
				return err
			}
			deleted = true
			return nil
		})
		switch {
		case err != nil:
			r.logger.Warn("failed to purge ghost household",
				slog.String("household_id", g.ID),
				slog.String("error", err.Error()),
			)
			summary.Errors++
		case deleted:
			summary.Processed++
		default:
			summary.Skipped++
		}
	}

	r.exporter.RecordReconcile(ctx, SweepGhosts, summary)
	r.logger.Info("ghost purge complete",
		slog.String("agency_id", agencyID),
		slog.Time("cutoff", cutoff),
		slog.Int("deleted", summary.Processed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)
	return summary, nil
}
