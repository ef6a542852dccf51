// Package event defines the domain events published after a write commits.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeQuoteRecorded      = "quote_recorded"
	TypeSaleRecorded       = "sale_recorded"
	TypeHouseholdPromoted  = "household_promoted"
	TypeRetentionSignalled = "retention_signalled"
	TypeSubmissionScored   = "submission_scored"
)

// EntityRef names an entity affected by an event.
type EntityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"`
}

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	AgencyID         string
	AffectedEntities []EntityRef
	Summary          string
	Payload          json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e DomainEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.EventType, err)
	}
	return nil
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ── Household facts ──────────────────────────────────────────────────────────

// QuoteRecordedPayload carries data for QuoteRecorded.
type QuoteRecordedPayload struct {
	FactID               string    `json:"fact_id"`
	HouseholdID          string    `json:"household_id"`
	AgencyID             string    `json:"agency_id"`
	MemberID             string    `json:"member_id"`
	QuoteDate            time.Time `json:"quote_date"`
	SkipMetricsIncrement bool      `json:"skip_metrics_increment"`
}

func NewQuoteRecorded(p QuoteRecordedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeQuoteRecorded,
		OccurredAt: time.Now().UTC(),
		AgencyID:   p.AgencyID,
		AffectedEntities: []EntityRef{
			{EntityType: "quote_fact", EntityID: p.FactID, Role: "subject"},
			{EntityType: "household", EntityID: p.HouseholdID, Role: "target"},
			{EntityType: "member", EntityID: p.MemberID, Role: "related"},
		},
		Summary: fmt.Sprintf("Quote recorded for household %s", short(p.HouseholdID)),
		Payload: mustJSON(p),
	}
}

// SaleRecordedPayload carries data for SaleRecorded.
type SaleRecordedPayload struct {
	FactID      string    `json:"fact_id"`
	HouseholdID string    `json:"household_id"`
	AgencyID    string    `json:"agency_id"`
	MemberID    string    `json:"member_id"`
	SaleDate    time.Time `json:"sale_date"`
}

func NewSaleRecorded(p SaleRecordedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeSaleRecorded,
		OccurredAt: time.Now().UTC(),
		AgencyID:   p.AgencyID,
		AffectedEntities: []EntityRef{
			{EntityType: "sale_fact", EntityID: p.FactID, Role: "subject"},
			{EntityType: "household", EntityID: p.HouseholdID, Role: "target"},
			{EntityType: "member", EntityID: p.MemberID, Role: "related"},
		},
		Summary: fmt.Sprintf("Sale recorded for household %s", short(p.HouseholdID)),
		Payload: mustJSON(p),
	}
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

// HouseholdPromotedPayload carries data for HouseholdPromoted. Cause is the
// event type that triggered the promotion.
type HouseholdPromotedPayload struct {
	HouseholdID          string    `json:"household_id"`
	AgencyID             string    `json:"agency_id"`
	MemberID             string    `json:"member_id,omitempty"`
	From                 string    `json:"from"`
	To                   string    `json:"to"`
	On                   time.Time `json:"on"`
	Cause                string    `json:"cause"`
	SkipMetricsIncrement bool      `json:"skip_metrics_increment"`
}

func NewHouseholdPromoted(p HouseholdPromotedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeHouseholdPromoted,
		OccurredAt: time.Now().UTC(),
		AgencyID:   p.AgencyID,
		AffectedEntities: []EntityRef{
			{EntityType: "household", EntityID: p.HouseholdID, Role: "subject"},
		},
		Summary: fmt.Sprintf("Household %s promoted %s -> %s", short(p.HouseholdID), p.From, p.To),
		Payload: mustJSON(p),
	}
}

// RetentionSignalledPayload carries data for RetentionSignalled.
type RetentionSignalledPayload struct {
	HouseholdID string    `json:"household_id"`
	AgencyID    string    `json:"agency_id"`
	Source      string    `json:"source"`
	Outcome     string    `json:"outcome"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewRetentionSignalled(p RetentionSignalledPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeRetentionSignalled,
		OccurredAt: time.Now().UTC(),
		AgencyID:   p.AgencyID,
		AffectedEntities: []EntityRef{
			{EntityType: "household", EntityID: p.HouseholdID, Role: "target"},
		},
		Summary: fmt.Sprintf("%s signal %s for household %s", p.Source, p.Outcome, short(p.HouseholdID)),
		Payload: mustJSON(p),
	}
}

// ── Scorecard ────────────────────────────────────────────────────────────────

// SubmissionScoredPayload carries data for SubmissionScored.
type SubmissionScoredPayload struct {
	SubmissionID   string    `json:"submission_id"`
	MetricRecordID string    `json:"metric_record_id"`
	AgencyID       string    `json:"agency_id"`
	MemberID       string    `json:"member_id"`
	WorkDate       time.Time `json:"work_date"`
	Pass           bool      `json:"pass"`
	Late           bool      `json:"late"`
}

func NewSubmissionScored(p SubmissionScoredPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeSubmissionScored,
		OccurredAt: time.Now().UTC(),
		AgencyID:   p.AgencyID,
		AffectedEntities: []EntityRef{
			{EntityType: "submission", EntityID: p.SubmissionID, Role: "subject"},
			{EntityType: "daily_metric", EntityID: p.MetricRecordID, Role: "target"},
			{EntityType: "member", EntityID: p.MemberID, Role: "related"},
		},
		Summary: fmt.Sprintf("Submission %s scored (pass=%t)", short(p.SubmissionID), p.Pass),
		Payload: mustJSON(p),
	}
}
