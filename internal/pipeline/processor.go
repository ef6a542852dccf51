// Package pipeline processes scorecard submissions end to end: store the
// payload, extract metrics, audit the extraction, merge and score, then
// flatten the repeated section.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/event"
	"github.com/emiliopalmerini/salespulse/internal/extract"
	"github.com/emiliopalmerini/salespulse/internal/flatten"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// Request is an incoming submission.
type Request struct {
	ID          string
	FormID      string
	MemberID    string
	WorkDate    time.Time
	Final       bool
	Payload     map[string]any
	SubmittedAt time.Time
}

// Outcome is the result of processing one submission.
type Outcome struct {
	Submission *domain.Submission
	// Draft is set when the submission was stored but not processed.
	Draft     bool
	Extracted *extract.Result
	Audit     *domain.AuditRecord
	Merge     *aggregation.Result
	Flatten   *flatten.Result
}

// Processor runs the submission pipeline.
type Processor struct {
	store     ports.Store
	resolver  *extract.Resolver
	engine    *aggregation.Engine
	flattener *flatten.Flattener
	bus       household.Publisher
	exporter  ports.MetricsExporter
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor creates a submission processor.
func NewProcessor(store ports.Store, resolver *extract.Resolver, engine *aggregation.Engine, flattener *flatten.Flattener, bus household.Publisher, exporter ports.MetricsExporter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		resolver:  resolver,
		engine:    engine,
		flattener: flattener,
		bus:       bus,
		exporter:  exporter,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a submission and, when it is final, processes it. A final
// resubmission for the same form, member and date links to the submission
// it supersedes.
func (p *Processor) Submit(ctx context.Context, req Request) (*Outcome, error) {
	repos := p.store.Repos()

	form, err := repos.Forms.GetByID(ctx, req.FormID)
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	if form == nil {
		return nil, fmt.Errorf("form %s: %w", req.FormID, domain.ErrNotFound)
	}
	member, err := repos.Members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil || member.AgencyID != form.AgencyID {
		return nil, fmt.Errorf("member %s in agency %s: %w", req.MemberID, form.AgencyID, domain.ErrNotFound)
	}
	if req.WorkDate.IsZero() {
		return nil, fmt.Errorf("work date is required")
	}

	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = p.now()
	}
	sub := &domain.Submission{
		ID:          req.ID,
		AgencyID:    form.AgencyID,
		FormID:      form.ID,
		MemberID:    member.ID,
		WorkDate:    domain.Day(req.WorkDate),
		Final:       req.Final,
		Late:        domain.IsLate(req.WorkDate, submittedAt),
		Payload:     req.Payload,
		SubmittedAt: submittedAt.UTC(),
	}
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.Payload == nil {
		sub.Payload = map[string]any{}
	}

	if sub.Final {
		prev, err := repos.Submissions.GetLatestFinal(ctx, form.ID, member.ID, sub.WorkDate)
		if err != nil {
			return nil, fmt.Errorf("failed to look up previous submission: %w", err)
		}
		if prev != nil {
			sub.SupersedesID = &prev.ID
		}
	}
	if err := repos.Submissions.Create(ctx, sub); err != nil {
		p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeError)
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	if !sub.Final {
		p.logger.Debug("stored draft submission", slog.String("submission_id", sub.ID))
		p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeSkipped)
		return &Outcome{Submission: sub, Draft: true}, nil
	}
	return p.process(ctx, sub, form, domain.ProducerScorecard)
}

// Reprocess runs a stored final submission through the pipeline again as a
// backfill. Detail rows are replaced and metric merges converge, so it can
// be repeated.
func (p *Processor) Reprocess(ctx context.Context, submissionID string) (*Outcome, error) {
	repos := p.store.Repos()
	sub, err := repos.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("submission %s: %w", submissionID, domain.ErrNotFound)
	}
	if !sub.Final {
		return nil, fmt.Errorf("submission %s: %w", submissionID, domain.ErrDraftSubmission)
	}
	form, err := repos.Forms.GetByID(ctx, sub.FormID)
	if err != nil {
		return nil, fmt.Errorf("failed to get form: %w", err)
	}
	if form == nil {
		return nil, fmt.Errorf("form %s: %w", sub.FormID, domain.ErrNotFound)
	}
	return p.process(ctx, sub, form, domain.ProducerBackfill)
}

func (p *Processor) process(ctx context.Context, sub *domain.Submission, form *domain.Form, producer domain.Producer) (*Outcome, error) {
	log := p.logger.With(
		slog.String("submission_id", sub.ID),
		slog.String("member_id", sub.MemberID),
		slog.String("work_date", domain.FormatDate(sub.WorkDate)),
	)
	out := &Outcome{Submission: sub}

	out.Extracted = p.resolver.Resolve(sub.Payload, form)
	out.Audit = out.Extracted.Audit(uuid.New().String(), sub.ID, form.ID)
	if err := p.store.Repos().Audits.Create(ctx, out.Audit); err != nil {
		p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeError)
		return nil, fmt.Errorf("failed to write audit record: %w", err)
	}
	if out.Audit.FieldsExtracted == 0 {
		log.Warn("submission produced no metric values",
			slog.Bool("mapping_configured", out.Audit.MappingConfigured),
		)
	}

	late := sub.Late
	merged, err := p.engine.Merge(ctx, aggregation.MergeRequest{
		AgencyID: sub.AgencyID,
		MemberID: sub.MemberID,
		WorkDate: sub.WorkDate,
		Values:   out.Extracted.Values,
		Producer: producer,
		Form:     form,
		Late:     &late,
	})
	if err != nil {
		p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeError)
		return nil, err
	}
	out.Merge = merged

	if merged.Record != nil {
		if err := p.store.Repos().Submissions.SetMetricRecord(ctx, sub.ID, merged.Record.ID); err != nil {
			p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeError)
			return nil, fmt.Errorf("failed to link metric record: %w", err)
		}
		id := merged.Record.ID
		sub.MetricRecordID = &id
	}

	if out.Extracted.Section != "" {
		out.Flatten, err = p.flattener.Flatten(ctx, sub, out.Extracted.Rows)
		if err != nil {
			p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeError)
			return nil, err
		}
	}

	if merged.Skipped {
		p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeSkipped)
		return out, nil
	}

	p.bus.Publish(ctx, event.NewSubmissionScored(event.SubmissionScoredPayload{
		SubmissionID:   sub.ID,
		MetricRecordID: merged.Record.ID,
		AgencyID:       sub.AgencyID,
		MemberID:       sub.MemberID,
		WorkDate:       sub.WorkDate,
		Pass:           merged.Record.Pass,
		Late:           merged.Record.Late,
	}))
	p.exporter.RecordSubmission(ctx, sub.AgencyID, ports.OutcomeApplied)
	log.Info("submission processed",
		slog.Int("fields", out.Audit.FieldsExtracted),
		slog.Bool("pass", merged.Record.Pass),
		slog.Int("streak", merged.Record.Streak),
	)
	return out, nil
}
