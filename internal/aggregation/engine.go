// Package aggregation merges producer values into DailyMetricRecords,
// scores them and keeps member streaks current.
//
// Every writer goes through Merge or Increment. Both run the record's
// read-modify-write in one transaction and apply domain.MergeValues, so the
// outcome of interleaved producers does not depend on their order.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// conflictRetries bounds how often a merge is re-run after losing the race
// to insert a new record.
const conflictRetries = 3

// MergeRequest is one producer's contribution to a (member, date) record.
type MergeRequest struct {
	AgencyID string
	MemberID string
	WorkDate time.Time
	Values   domain.MetricValues
	Producer domain.Producer
	// Form optionally binds a new record to the form's rule version.
	Form *domain.Form
	// Late is applied only for authoritative producers.
	Late *bool
}

// IncrementRequest adds Delta to an additive counter.
type IncrementRequest struct {
	AgencyID string
	MemberID string
	WorkDate time.Time
	Key      domain.MetricKey
	Delta    float64
	Producer domain.Producer
}

// Result describes the outcome of one merge.
type Result struct {
	Record  *domain.DailyMetricRecord
	Created bool
	// Skipped is set when no record existed and no rule version could be
	// resolved, so nothing was written.
	Skipped bool
	Dropped []domain.MetricKey
	Score   domain.ScoreResult
}

// Engine is the metrics upsert engine.
type Engine struct {
	store        ports.Store
	exporter     ports.MetricsExporter
	logger       *slog.Logger
	streakWindow int
}

// NewEngine creates an engine. A window of zero uses the default.
func NewEngine(store ports.Store, exporter ports.MetricsExporter, logger *slog.Logger, streakWindow int) *Engine {
	if streakWindow <= 0 {
		streakWindow = domain.DefaultStreakWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, exporter: exporter, logger: logger, streakWindow: streakWindow}
}

// Merge merges req.Values into the record for (member, date).
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (*Result, error) {
	values := req.Values
	return e.apply(ctx, req, func(domain.MetricValues) domain.MetricValues { return values })
}

// Increment adds a delta to an additive counter. The sum is computed from
// the stored value inside the transaction and merged by max.
func (e *Engine) Increment(ctx context.Context, req IncrementRequest) (*Result, error) {
	if domain.PolicyFor(req.Key) != domain.MergeMax {
		return nil, fmt.Errorf("cannot increment %s: not an additive counter", req.Key)
	}
	mr := MergeRequest{
		AgencyID: req.AgencyID,
		MemberID: req.MemberID,
		WorkDate: req.WorkDate,
		Producer: req.Producer,
	}
	return e.apply(ctx, mr, func(existing domain.MetricValues) domain.MetricValues {
		return domain.MetricValues{req.Key: existing.Get(req.Key) + req.Delta}
	})
}

func (e *Engine) apply(ctx context.Context, req MergeRequest, incoming func(existing domain.MetricValues) domain.MetricValues) (*Result, error) {
	if !req.Producer.Valid() {
		return nil, fmt.Errorf("unknown producer %q", req.Producer)
	}
	workDate := domain.Day(req.WorkDate)
	log := e.logger.With(
		slog.String("member_id", req.MemberID),
		slog.String("work_date", domain.FormatDate(workDate)),
		slog.String("producer", string(req.Producer)),
	)

	var res *Result
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		res, err = e.applyTx(ctx, req, workDate, incoming, log)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		log.Debug("concurrent insert of the same record, retrying", slog.Int("attempt", attempt+1))
	}
	if err != nil {
		e.exporter.RecordMerge(ctx, req.Producer, ports.OutcomeError)
		return nil, fmt.Errorf("failed to merge metrics: %w", err)
	}

	if res.Skipped {
		e.exporter.RecordMerge(ctx, req.Producer, ports.OutcomeSkipped)
	} else {
		e.exporter.RecordMerge(ctx, req.Producer, ports.OutcomeApplied)
	}
	return res, nil
}

// applyTx runs one read-modify-write of the record. A concurrent writer that
// inserted the same (member, date) first surfaces as domain.ErrConflict; the
// retry then reads that row and takes the update path.
func (e *Engine) applyTx(ctx context.Context, req MergeRequest, workDate time.Time, incoming func(existing domain.MetricValues) domain.MetricValues, log *slog.Logger) (*Result, error) {
	var res *Result
	err := e.store.WithinTx(ctx, func(r *ports.Repositories) error {
		member, err := r.Members.GetByID(ctx, req.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("member %s: %w", req.MemberID, domain.ErrNotFound)
		}
		agencyID := req.AgencyID
		if agencyID == "" {
			agencyID = member.AgencyID
		}

		rec, err := r.Metrics.Get(ctx, req.MemberID, workDate)
		if err != nil {
			return err
		}

		res = &Result{}
		var rule *domain.ScoringRule
		if rec == nil {
			rule, err = resolveRule(ctx, r, req.Form, agencyID, member.Role)
			if err != nil {
				return err
			}
			if rule == nil {
				log.Warn("no rule version resolvable, skipping new metric record",
					slog.String("agency_id", agencyID),
					slog.String("role", member.Role),
				)
				res.Skipped = true
				return nil
			}
			rec = &domain.DailyMetricRecord{
				ID:            uuid.New().String(),
				AgencyID:      agencyID,
				MemberID:      req.MemberID,
				WorkDate:      workDate,
				RuleVersionID: rule.ID,
				Values:        domain.MetricValues{},
			}
			res.Created = true
		} else {
			rule, err = r.Rules.GetByID(ctx, rec.RuleVersionID)
			if err != nil {
				return err
			}
		}

		merged, dropped := domain.MergeValues(rec.Values, incoming(rec.Values), req.Producer)
		if len(dropped) > 0 {
			log.Warn("dropping authoritative fields from non-authoritative producer",
				slog.Any("fields", dropped),
			)
		}
		rec.Values = merged
		res.Dropped = dropped
		if req.Late != nil && req.Producer.Authoritative() {
			rec.Late = *req.Late
		}

		score, err := rescore(ctx, r, rec, rule)
		if err != nil {
			return err
		}
		res.Score = score

		if res.Created {
			err = r.Metrics.Insert(ctx, rec)
		} else {
			err = r.Metrics.Update(ctx, rec)
		}
		if err != nil {
			return err
		}

		if err := recalculateStreaks(ctx, r, rec.MemberID, workDate, e.streakWindow); err != nil {
			return err
		}
		res.Record, err = r.Metrics.GetByID(ctx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// resolveRule picks the form-bound rule version, else the latest version
// for (agency, role). It returns nil when neither exists.
func resolveRule(ctx context.Context, r *ports.Repositories, form *domain.Form, agencyID, role string) (*domain.ScoringRule, error) {
	if form != nil && form.RuleVersionID != nil {
		rule, err := r.Rules.GetByID(ctx, *form.RuleVersionID)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}
	if form != nil && form.Role != "" {
		role = form.Role
	}
	return r.Rules.GetLatest(ctx, agencyID, role)
}
