// Package household implements the household lifecycle: identity dedup,
// fact ingestion and forward-only status promotion.
//
// Fact writers only record facts and publish events. Promotion happens in
// PromotionHandler, and the quoted-count credit in MetricsCreditHandler, so
// the fan-out from one fact is explicit and runs outside the fact's
// transaction.
package household

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/event"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// Publisher publishes committed domain events.
type Publisher interface {
	Publish(ctx context.Context, evt event.DomainEvent)
}

// Promotion causes that are not event types.
const (
	CauseReconcile = "reconcile"
	CauseAdmin     = "admin"
)

// Service is the household lifecycle service.
type Service struct {
	store    ports.Store
	bus      Publisher
	exporter ports.MetricsExporter
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a household service.
func NewService(store ports.Store, bus Publisher, exporter ports.MetricsExporter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		bus:      bus,
		exporter: exporter,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// QuoteInput identifies a household and the quote recorded against it.
type QuoteInput struct {
	Identity domain.HouseholdIdentity
	Contact  domain.HouseholdContact
	Fact     domain.QuoteFact
}

// SaleInput identifies a household and the sale recorded against it.
type SaleInput struct {
	Identity domain.HouseholdIdentity
	Contact  domain.HouseholdContact
	Fact     domain.SaleFact
}

// RecordResult is the outcome of a fact write. Inserted is false when the
// fact's source ref was already stored.
type RecordResult struct {
	Household *domain.Household
	Created   bool
	FactID    string
	Inserted  bool
}

// View is a household with its linked facts.
type View struct {
	Household *domain.Household
	Quotes    []*domain.QuoteFact
	Sales     []*domain.SaleFact
}

// RecordQuote upserts the household for in.Identity and appends the quote.
func (s *Service) RecordQuote(ctx context.Context, in QuoteInput) (*RecordResult, error) {
	fact := in.Fact
	if fact.ID == "" {
		fact.ID = uuid.New().String()
	}
	if fact.Provenance == "" {
		fact.Provenance = domain.ProvenanceManual
	}
	if !fact.Provenance.Valid() {
		return nil, fmt.Errorf("unknown provenance %q", fact.Provenance)
	}
	fact.AgencyID = in.Identity.AgencyID
	fact.QuoteDate = domain.Day(fact.QuoteDate)
	if in.Contact.MemberID == "" {
		in.Contact.MemberID = fact.MemberID
	}

	var res *RecordResult
	err := s.store.WithinTx(ctx, func(r *ports.Repositories) error {
		h, created, err := Upsert(ctx, r, in.Identity, in.Contact, s.now())
		if err != nil {
			return err
		}
		fact.HouseholdID = h.ID
		inserted, err := r.Facts.InsertQuote(ctx, &fact)
		if err != nil {
			return err
		}
		res = &RecordResult{Household: h, Created: created, FactID: fact.ID, Inserted: inserted}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record quote: %w", err)
	}

	if !res.Inserted {
		s.logger.Debug("quote fact already recorded",
			slog.String("household_id", res.Household.ID),
			slog.String("source_ref", deref(fact.SourceRef)),
		)
		return res, nil
	}
	s.bus.Publish(ctx, event.NewQuoteRecorded(event.QuoteRecordedPayload{
		FactID:               fact.ID,
		HouseholdID:          fact.HouseholdID,
		AgencyID:             fact.AgencyID,
		MemberID:             fact.MemberID,
		QuoteDate:            fact.QuoteDate,
		SkipMetricsIncrement: fact.SkipMetricsIncrement,
	}))
	return res, nil
}

// RecordSale upserts the household for in.Identity and appends the sale.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (*RecordResult, error) {
	fact := in.Fact
	if fact.ID == "" {
		fact.ID = uuid.New().String()
	}
	if fact.Provenance == "" {
		fact.Provenance = domain.ProvenanceManual
	}
	if !fact.Provenance.Valid() {
		return nil, fmt.Errorf("unknown provenance %q", fact.Provenance)
	}
	fact.AgencyID = in.Identity.AgencyID
	fact.SaleDate = domain.Day(fact.SaleDate)
	if in.Contact.MemberID == "" {
		in.Contact.MemberID = fact.MemberID
	}

	var res *RecordResult
	err := s.store.WithinTx(ctx, func(r *ports.Repositories) error {
		h, created, err := Upsert(ctx, r, in.Identity, in.Contact, s.now())
		if err != nil {
			return err
		}
		fact.HouseholdID = h.ID
		inserted, err := r.Facts.InsertSale(ctx, &fact)
		if err != nil {
			return err
		}
		res = &RecordResult{Household: h, Created: created, FactID: fact.ID, Inserted: inserted}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record sale: %w", err)
	}

	if !res.Inserted {
		return res, nil
	}
	s.bus.Publish(ctx, event.NewSaleRecorded(event.SaleRecordedPayload{
		FactID:      fact.ID,
		HouseholdID: fact.HouseholdID,
		AgencyID:    fact.AgencyID,
		MemberID:    fact.MemberID,
		SaleDate:    fact.SaleDate,
	}))
	return res, nil
}

// ApplySignal validates a retention signal and publishes it for promotion.
func (s *Service) ApplySignal(ctx context.Context, sig domain.RetentionSignal) error {
	if _, err := sig.TargetStatus(); err != nil {
		return err
	}
	h, err := s.store.Repos().Households.GetByID(ctx, sig.HouseholdID)
	if err != nil {
		return fmt.Errorf("failed to get household: %w", err)
	}
	if h == nil {
		return fmt.Errorf("household %s: %w", sig.HouseholdID, domain.ErrNotFound)
	}
	if sig.OccurredAt.IsZero() {
		sig.OccurredAt = s.now()
	}

	s.bus.Publish(ctx, event.NewRetentionSignalled(event.RetentionSignalledPayload{
		HouseholdID: h.ID,
		AgencyID:    h.AgencyID,
		Source:      string(sig.Source),
		Outcome:     string(sig.Outcome),
		OccurredAt:  sig.OccurredAt,
	}))
	return nil
}

// PromoteRequest moves a household forward to Target.
type PromoteRequest struct {
	HouseholdID string
	Target      domain.HouseholdStatus
	On          time.Time
	Cause       string
	// MemberID is the member credited for the promotion. Empty falls back
	// to the household's assigned member.
	MemberID             string
	SkipMetricsIncrement bool
}

// PromoteResult reports the status before and after a promotion.
type PromoteResult struct {
	Household *domain.Household
	From      domain.HouseholdStatus
	Changed   bool
}

// Promote applies a forward-only transition. Promoting to the current or a
// lower status is a no-op apart from stamping unset dates.
func (s *Service) Promote(ctx context.Context, req PromoteRequest) (*PromoteResult, error) {
	if !req.Target.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, req.Target)
	}

	var res *PromoteResult
	err := s.store.WithinTx(ctx, func(r *ports.Repositories) error {
		h, err := r.Households.GetByID(ctx, req.HouseholdID)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("household %s: %w", req.HouseholdID, domain.ErrNotFound)
		}
		before := datesOf(h)
		from, changed := h.Promote(req.Target, req.On)
		if changed || datesOf(h) != before {
			h.UpdatedAt = s.now()
			if err := r.Households.Update(ctx, h); err != nil {
				return err
			}
		}
		res = &PromoteResult{Household: h, From: from, Changed: changed}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to promote household: %w", err)
	}
	if !res.Changed {
		return res, nil
	}

	h := res.Household
	memberID := req.MemberID
	if memberID == "" && h.AssignedMemberID != nil {
		memberID = *h.AssignedMemberID
	}
	s.logger.Info("household promoted",
		slog.String("household_id", h.ID),
		slog.String("from", string(res.From)),
		slog.String("to", string(h.Status)),
		slog.String("cause", req.Cause),
	)
	s.exporter.RecordPromotion(ctx, res.From, h.Status, req.Cause)
	s.bus.Publish(ctx, event.NewHouseholdPromoted(event.HouseholdPromotedPayload{
		HouseholdID:          h.ID,
		AgencyID:             h.AgencyID,
		MemberID:             memberID,
		From:                 string(res.From),
		To:                   string(h.Status),
		On:                   domain.Day(req.On),
		Cause:                req.Cause,
		SkipMetricsIncrement: req.SkipMetricsIncrement,
	}))
	return res, nil
}

// SetStatus is the administrative correction path and the only way to
// lower a status. Lowering clears the dates of the states left behind.
// Facts are not touched, so the reconcile sweep promotes the household
// again while it still has quote or sale facts.
func (s *Service) SetStatus(ctx context.Context, householdID string, status domain.HouseholdStatus) (*domain.Household, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}

	var h *domain.Household
	var from domain.HouseholdStatus
	err := s.store.WithinTx(ctx, func(r *ports.Repositories) error {
		var err error
		h, err = r.Households.GetByID(ctx, householdID)
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("household %s: %w", householdID, domain.ErrNotFound)
		}
		from = h.Status
		now := s.now()
		if status.Rank() >= from.Rank() {
			h.Promote(status, now)
		} else {
			h.Status = status
			h.SoldDate = nil
			if status == domain.StatusLead {
				h.FirstQuoteDate = nil
			}
		}
		h.UpdatedAt = now
		return r.Households.Update(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set household status: %w", err)
	}

	if status.Rank() < from.Rank() {
		s.logger.Warn("household status lowered by administrative correction",
			slog.String("household_id", householdID),
			slog.String("from", string(from)),
			slog.String("to", string(status)),
		)
	}
	if from != status {
		s.exporter.RecordPromotion(ctx, from, status, CauseAdmin)
	}
	return h, nil
}

// Get returns the household with its facts, or ErrNotFound.
func (s *Service) Get(ctx context.Context, householdID string) (*View, error) {
	repos := s.store.Repos()
	h, err := repos.Households.GetByID(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to get household: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("household %s: %w", householdID, domain.ErrNotFound)
	}
	quotes, err := repos.Facts.ListQuotes(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	sales, err := repos.Facts.ListSales(ctx, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return &View{Household: h, Quotes: quotes, Sales: sales}, nil
}

// Upsert finds the household for identity or inserts a new lead, then fills
// unset contact attributes. It must run inside the caller's transaction.
func Upsert(ctx context.Context, r *ports.Repositories, identity domain.HouseholdIdentity, contact domain.HouseholdContact, now time.Time) (*domain.Household, bool, error) {
	key, err := identity.Key()
	if err != nil {
		return nil, false, err
	}

	label, err := ResolveLeadSourceLabel(ctx, r.LeadSources, contact.LeadSourceID, contact.LeadSourceLabel)
	if err != nil {
		return nil, false, err
	}
	contact.LeadSourceLabel = label

	h, err := r.Households.GetByKey(ctx, identity.AgencyID, key)
	if err != nil {
		return nil, false, err
	}
	if h == nil {
		h, err = domain.NewHousehold(uuid.New().String(), identity, now)
		if err != nil {
			return nil, false, err
		}
		h.MergeContact(contact)
		if err := r.Households.Insert(ctx, h); err != nil {
			return nil, false, err
		}
		return h, true, nil
	}

	before := *h
	h.MergeContact(contact)
	if contactChanged(&before, h) {
		h.UpdatedAt = now
		if err := r.Households.Update(ctx, h); err != nil {
			return nil, false, err
		}
	}
	return h, false, nil
}

// ResolveLeadSourceLabel returns label when set. Otherwise it looks the
// label up by id; an unknown id yields an empty label.
func ResolveLeadSourceLabel(ctx context.Context, sources ports.LeadSourceRepository, id, label string) (string, error) {
	if label = strings.TrimSpace(label); label != "" || id == "" {
		return label, nil
	}
	ls, err := sources.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve lead source: %w", err)
	}
	if ls == nil {
		return "", nil
	}
	return ls.Label, nil
}

func contactChanged(a, b *domain.Household) bool {
	return a.Email != b.Email ||
		a.Phone != b.Phone ||
		a.NeedsAttention != b.NeedsAttention ||
		(a.AssignedMemberID == nil) != (b.AssignedMemberID == nil) ||
		(a.LeadSourceID == nil) != (b.LeadSourceID == nil) ||
		(a.LeadSourceLabel == nil) != (b.LeadSourceLabel == nil)
}

type dates struct{ quote, sold string }

func datesOf(h *domain.Household) dates {
	var d dates
	if h.FirstQuoteDate != nil {
		d.quote = domain.FormatDate(*h.FirstQuoteDate)
	}
	if h.SoldDate != nil {
		d.sold = domain.FormatDate(*h.SoldDate)
	}
	return d
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
