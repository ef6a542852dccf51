// Package flatten explodes a submission's repeated quoted-households
// section into detail rows and quote facts.
//
// Flattening a submission replaces every detail row it previously produced,
// so it can be re-run after corrections without duplicating rows. The quote
// facts it records are keyed by submission and position and carry the
// skip-increment flag, because the scorecard already counted them.
package flatten

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/extract"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// QuoteRecorder records quote facts against deduplicated households.
type QuoteRecorder interface {
	RecordQuote(ctx context.Context, in household.QuoteInput) (*household.RecordResult, error)
}

// Result summarises one flatten run.
type Result struct {
	Deleted int64
	Details domain.BatchSummary
	Facts   domain.BatchSummary
}

// Flattener writes detail rows and quote facts for submissions.
type Flattener struct {
	store      ports.Store
	households QuoteRecorder
	resolver   *extract.Resolver
	logger     *slog.Logger
}

// New creates a flattener.
func New(store ports.Store, households QuoteRecorder, resolver *extract.Resolver, logger *slog.Logger) *Flattener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flattener{store: store, households: households, resolver: resolver, logger: logger}
}

// FactRef is the idempotency key of the quote fact for a section row.
func FactRef(submissionID string, position int) string {
	return fmt.Sprintf("%s#%d", submissionID, position)
}

// Flatten replaces the detail rows of sub with rows. Blank rows are
// skipped; a failing row is counted and never aborts the batch.
func (f *Flattener) Flatten(ctx context.Context, sub *domain.Submission, rows []extract.Row) (*Result, error) {
	log := f.logger.With(slog.String("submission_id", sub.ID))
	res := &Result{}
	var written []*domain.QuotedHouseholdDetail

	err := f.store.WithinTx(ctx, func(r *ports.Repositories) error {
		res.Details = domain.BatchSummary{}
		written = written[:0]

		deleted, err := r.Details.DeleteBySubmission(ctx, sub.ID)
		if err != nil {
			return err
		}
		res.Deleted = deleted

		for _, row := range rows {
			if row.IsBlank() {
				res.Details.Skipped++
				continue
			}
			label, err := household.ResolveLeadSourceLabel(ctx, r.LeadSources, row.LeadSourceID, row.LeadSourceLabel)
			if err != nil {
				log.Warn("lead source lookup failed", slog.Int("position", row.Position), slog.String("error", err.Error()))
				label = row.LeadSourceLabel
			}

			d := &domain.QuotedHouseholdDetail{
				ID:              uuid.New().String(),
				SubmissionID:    sub.ID,
				AgencyID:        sub.AgencyID,
				MemberID:        sub.MemberID,
				WorkDate:        sub.WorkDate,
				Position:        row.Position,
				FirstName:       row.FirstName,
				LastName:        row.LastName,
				Zip:             row.Zip,
				ProductType:     row.ProductType,
				Items:           row.Items,
				PremiumCents:    row.PremiumCents,
				LeadSourceID:    optional(row.LeadSourceID),
				LeadSourceLabel: optional(label),
			}
			if err := r.Details.Insert(ctx, d); err != nil {
				log.Warn("skipping detail row", slog.Int("position", row.Position), slog.String("error", err.Error()))
				res.Details.Errors++
				continue
			}
			res.Details.Processed++
			written = append(written, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to flatten submission: %w", err)
	}

	for _, d := range written {
		if d.FirstName == "" || d.LastName == "" {
			res.Facts.Skipped++
			continue
		}
		_, err := f.households.RecordQuote(ctx, household.QuoteInput{
			Identity: domain.HouseholdIdentity{
				AgencyID:  d.AgencyID,
				FirstName: d.FirstName,
				LastName:  d.LastName,
				Zip:       d.Zip,
			},
			Contact: domain.HouseholdContact{
				MemberID:        d.MemberID,
				LeadSourceID:    deref(d.LeadSourceID),
				LeadSourceLabel: deref(d.LeadSourceLabel),
			},
			Fact: domain.QuoteFact{
				MemberID:             d.MemberID,
				QuoteDate:            d.WorkDate,
				ProductType:          d.ProductType,
				PremiumCents:         d.PremiumCents,
				Items:                d.Items,
				Provenance:           domain.ProvenanceManual,
				SourceRef:            optional(FactRef(sub.ID, d.Position)),
				SkipMetricsIncrement: true,
			},
		})
		if err != nil {
			log.Warn("failed to record quote fact for detail row",
				slog.Int("position", d.Position),
				slog.String("error", err.Error()),
			)
			res.Facts.Errors++
			continue
		}
		res.Facts.Processed++
	}

	log.Info("flattened submission",
		slog.Int64("deleted", res.Deleted),
		slog.Int("details", res.Details.Processed),
		slog.Int("skipped", res.Details.Skipped),
		slog.Int("errors", res.Details.Errors+res.Facts.Errors),
	)
	return res, nil
}

// FlattenStored re-extracts a stored submission and flattens it.
func (f *Flattener) FlattenStored(ctx context.Context, submissionID string) (*Result, error) {
	repos := f.store.Repos()
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

	extracted := f.resolver.Resolve(sub.Payload, form)
	return f.Flatten(ctx, sub, extracted.Rows)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
