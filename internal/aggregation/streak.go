package aggregation

import (
	"context"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// rescore recomputes the derived scoring fields of rec in place.
func rescore(ctx context.Context, r *ports.Repositories, rec *domain.DailyMetricRecord, rule *domain.ScoringRule) (domain.ScoreResult, error) {
	agency, err := r.Agencies.GetByID(ctx, rec.AgencyID)
	if err != nil {
		return domain.ScoreResult{}, err
	}
	lateCounts := agency != nil && agency.LateCountsForPass

	targets, err := r.Targets.ListForMember(ctx, rec.AgencyID, rec.MemberID)
	if err != nil {
		return domain.ScoreResult{}, err
	}

	score := domain.Score(rec.Values, rule, domain.NewTargetSet(targets, rec.MemberID), rec.Late, lateCounts)
	rec.CountedDay = rule.IsCountedDay(rec.WorkDate, true)
	rec.Hits = score.Hits
	rec.Score = score.Score
	rec.Pass = score.Pass
	return score, nil
}

// recalculateStreaks refreshes the streak of every record of the member
// whose scan window covers from. Records up to window days after from are
// affected; records up to window days before it are read as history.
func recalculateStreaks(ctx context.Context, r *ports.Repositories, memberID string, from time.Time, window int) error {
	from = domain.Day(from)
	records, err := r.Metrics.ListRange(ctx, memberID, from.AddDate(0, 0, -window), from.AddDate(0, 0, window))
	if err != nil {
		return fmt.Errorf("failed to load streak history: %w", err)
	}

	days := make([]domain.StreakDay, 0, len(records))
	for _, rec := range records {
		days = append(days, domain.StreakDay{Date: rec.WorkDate, Counted: rec.CountedDay, Pass: rec.Pass})
	}

	rules := make(map[string]*domain.ScoringRule)
	for _, rec := range records {
		if rec.WorkDate.Before(from) {
			continue
		}
		rule, ok := rules[rec.RuleVersionID]
		if !ok {
			rule, err = r.Rules.GetByID(ctx, rec.RuleVersionID)
			if err != nil {
				return err
			}
			rules[rec.RuleVersionID] = rule
		}

		streak := domain.ComputeStreak(days, rec.WorkDate, window, rule.IsCountedWeekday)
		if streak == rec.Streak {
			continue
		}
		if err := r.Metrics.UpdateStreak(ctx, rec.ID, streak); err != nil {
			return fmt.Errorf("failed to update streak: %w", err)
		}
	}
	return nil
}
