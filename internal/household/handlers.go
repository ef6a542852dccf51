package household

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/event"
)

// PromotionHandler promotes households in response to fact and retention
// events. Redelivery is harmless: a repeated promotion is a no-op.
type PromotionHandler struct {
	svc *Service
}

// NewPromotionHandler creates a promotion handler over svc.
func NewPromotionHandler(svc *Service) *PromotionHandler {
	return &PromotionHandler{svc: svc}
}

func (h *PromotionHandler) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	var req PromoteRequest

	switch evt.EventType {
	case event.TypeQuoteRecorded:
		var p event.QuoteRecordedPayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		req = PromoteRequest{
			HouseholdID:          p.HouseholdID,
			Target:               domain.StatusQuoted,
			On:                   p.QuoteDate,
			MemberID:             p.MemberID,
			SkipMetricsIncrement: p.SkipMetricsIncrement,
		}

	case event.TypeSaleRecorded:
		var p event.SaleRecordedPayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		req = PromoteRequest{
			HouseholdID: p.HouseholdID,
			Target:      domain.StatusSold,
			On:          p.SaleDate,
			MemberID:    p.MemberID,
		}

	case event.TypeRetentionSignalled:
		var p event.RetentionSignalledPayload
		if err := evt.Decode(&p); err != nil {
			return err
		}
		sig := domain.RetentionSignal{
			Source:      domain.RetentionSource(p.Source),
			Outcome:     domain.RetentionOutcome(p.Outcome),
			HouseholdID: p.HouseholdID,
			OccurredAt:  p.OccurredAt,
		}
		target, err := sig.TargetStatus()
		if err != nil {
			return err
		}
		// Signals carry no literal fact, so there is nothing to credit.
		req = PromoteRequest{
			HouseholdID:          p.HouseholdID,
			Target:               target,
			On:                   p.OccurredAt,
			SkipMetricsIncrement: true,
		}

	default:
		return nil
	}

	req.Cause = evt.EventType
	_, err := h.svc.Promote(ctx, req)
	return err
}

// Incrementer credits additive metric counters.
type Incrementer interface {
	Increment(ctx context.Context, req aggregation.IncrementRequest) (*aggregation.Result, error)
}

// MetricsCreditHandler adds one to the member's quoted count when a quote
// fact moves a household from lead to quoted. Facts flagged to skip the
// increment were already counted by their producer.
type MetricsCreditHandler struct {
	engine Incrementer
	logger *slog.Logger
}

// NewMetricsCreditHandler creates a metrics credit handler.
func NewMetricsCreditHandler(engine Incrementer, logger *slog.Logger) *MetricsCreditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsCreditHandler{engine: engine, logger: logger}
}

func (h *MetricsCreditHandler) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	if evt.EventType != event.TypeHouseholdPromoted {
		return nil
	}
	var p event.HouseholdPromotedPayload
	if err := evt.Decode(&p); err != nil {
		return err
	}

	if p.Cause != event.TypeQuoteRecorded || p.SkipMetricsIncrement {
		return nil
	}
	if p.From != string(domain.StatusLead) || p.To != string(domain.StatusQuoted) {
		return nil
	}
	if p.MemberID == "" {
		h.logger.Warn("promoted household has no member to credit",
			slog.String("household_id", p.HouseholdID),
		)
		return nil
	}

	res, err := h.engine.Increment(ctx, aggregation.IncrementRequest{
		AgencyID: p.AgencyID,
		MemberID: p.MemberID,
		WorkDate: p.On,
		Key:      domain.MetricQuotedHouseholds,
		Delta:    1,
		Producer: domain.ProducerHouseholdPromotion,
	})
	if err != nil {
		return fmt.Errorf("failed to credit quoted household: %w", err)
	}
	if res.Skipped {
		return nil
	}
	h.logger.Debug("credited quoted household",
		slog.String("household_id", p.HouseholdID),
		slog.String("member_id", p.MemberID),
		slog.String("work_date", domain.FormatDate(p.On)),
	)
	return nil
}
