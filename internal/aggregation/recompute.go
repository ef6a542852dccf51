package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// RecomputeRequest rescores a member's stored records in [From, To].
type RecomputeRequest struct {
	MemberID string
	From     time.Time
	To       time.Time
	// Rebind moves each record to the latest rule version for the member's
	// role before scoring. Without it records keep their bound version.
	Rebind bool
}

// Recompute rescores existing records and refreshes the streaks they
// influence. Values are never modified, so repeated runs converge.
func (e *Engine) Recompute(ctx context.Context, req RecomputeRequest) (domain.BatchSummary, error) {
	from, to := domain.Day(req.From), domain.Day(req.To)
	if to.Before(from) {
		return domain.BatchSummary{}, fmt.Errorf("invalid range: %s is after %s", domain.FormatDate(from), domain.FormatDate(to))
	}

	var summary domain.BatchSummary
	err := e.store.WithinTx(ctx, func(r *ports.Repositories) error {
		member, err := r.Members.GetByID(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %s: %w", req.MemberID, domain.ErrNotFound)
		}

		var latest *domain.ScoringRule
		if req.Rebind {
			latest, err = r.Rules.GetLatest(ctx, member.AgencyID, member.Role)
			if err != nil {
				return err
			}
			if latest == nil {
				return fmt.Errorf("agency %s role %s: %w", member.AgencyID, member.Role, domain.ErrNoRuleVersion)
			}
		}

		records, err := r.Metrics.ListRange(ctx, req.MemberID, from, to)
		if err != nil {
			return err
		}
		for _, rec := range records {
			rule := latest
			if rule == nil {
				rule, err = r.Rules.GetByID(ctx, rec.RuleVersionID)
				if err != nil {
					return err
				}
			} else {
				rec.RuleVersionID = rule.ID
			}
			if rule == nil {
				e.logger.Warn("record references a missing rule version",
					slog.String("record_id", rec.ID),
					slog.String("rule_version_id", rec.RuleVersionID),
				)
				summary.Skipped++
				continue
			}
			if _, err := rescore(ctx, r, rec, rule); err != nil {
				return err
			}
			if err := r.Metrics.Update(ctx, rec); err != nil {
				return err
			}
			summary.Processed++
		}

		// Streaks depend on every record before them, so walk forward one
		// window at a time from the start of the range.
		for day := from; !day.After(to); day = day.AddDate(0, 0, e.streakWindow) {
			if err := recalculateStreaks(ctx, r, req.MemberID, day, e.streakWindow); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.BatchSummary{}, fmt.Errorf("failed to recompute metrics: %w", err)
	}

	e.logger.Info("recomputed metric records",
		slog.String("member_id", req.MemberID),
		slog.String("from", domain.FormatDate(from)),
		slog.String("to", domain.FormatDate(to)),
		slog.Bool("rebind", req.Rebind),
		slog.Int("processed", summary.Processed),
		slog.Int("skipped", summary.Skipped),
	)
	return summary, nil
}
