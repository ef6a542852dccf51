package domain

import (
	"fmt"
	"time"
)

// Provenance tags the upstream system that produced a fact.
type Provenance string

const (
	ProvenanceManual     Provenance = "manual"
	ProvenanceCallCenter Provenance = "call_center_sync"
	ProvenanceSalesSync  Provenance = "sales_sync"
	ProvenanceBulkUpload Provenance = "bulk_upload"
)

// Valid reports whether p is a known provenance.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceManual, ProvenanceCallCenter, ProvenanceSalesSync, ProvenanceBulkUpload:
		return true
	}
	return false
}

// ParseProvenance parses a provenance tag, defaulting to manual when empty.
func ParseProvenance(s string) (Provenance, error) {
	if s == "" {
		return ProvenanceManual, nil
	}
	p := Provenance(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provenance %q", s)
	}
	return p, nil
}

// QuoteFact is an append-only quote event for a household.
type QuoteFact struct {
	ID                   string
	HouseholdID          string
	AgencyID             string
	MemberID             string
	QuoteDate            time.Time
	ProductType          string
	PremiumCents         int64
	Items                int64
	Provenance           Provenance
	SourceRef            *string // idempotency key from the producer
	SkipMetricsIncrement bool
	CreatedAt            time.Time
}

// SaleFact is an append-only sale event for a household.
type SaleFact struct {
	ID           string
	HouseholdID  string
	AgencyID     string
	MemberID     string
	SaleDate     time.Time
	ProductType  string
	PremiumCents int64
	Items        int64
	Policies     int64
	Provenance   Provenance
	SourceRef    *string
	CreatedAt    time.Time
}

// FactCounts summarises the facts linked to a household.
type FactCounts struct {
	Quotes        int
	Sales         int
	EarliestQuote *time.Time
	EarliestSale  *time.Time
}
