package web

import (
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/pipeline"
)

// SubmitRequest is the JSON body of a scorecard submission. Final defaults
// to true when omitted.
type SubmitRequest struct {
	ID          string         `json:"id"`
	FormID      string         `json:"form_id"`
	MemberID    string         `json:"member_id"`
	WorkDate    string         `json:"work_date"`
	Final       *bool          `json:"final"`
	SubmittedAt *time.Time     `json:"submitted_at"`
	Payload     map[string]any `json:"payload"`
}

// Request validates the body and converts it for the pipeline.
func (b SubmitRequest) Request() (pipeline.Request, error) {
	if b.FormID == "" || b.MemberID == "" {
		return pipeline.Request{}, badRequest("form_id and member_id are required")
	}
	workDate, err := parseDate("work_date", b.WorkDate)
	if err != nil {
		return pipeline.Request{}, err
	}
	req := pipeline.Request{
		ID:       b.ID,
		FormID:   b.FormID,
		MemberID: b.MemberID,
		WorkDate: workDate,
		Final:    b.Final == nil || *b.Final,
		Payload:  b.Payload,
	}
	if b.SubmittedAt != nil {
		req.SubmittedAt = *b.SubmittedAt
	}
	return req, nil
}

// FactRequest is the JSON body of a quote or sale fact. Date is the quote
// or sale date.
type FactRequest struct {
	AgencyID             string `json:"agency_id"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Zip                  string `json:"zip"`
	Email                string `json:"email"`
	Phone                string `json:"phone"`
	LeadSourceID         string `json:"lead_source_id"`
	LeadSourceLabel      string `json:"lead_source_label"`
	MemberID             string `json:"member_id"`
	Date                 string `json:"date"`
	ProductType          string `json:"product_type"`
	PremiumCents         int64  `json:"premium_cents"`
	Items                int64  `json:"items"`
	Policies             int64  `json:"policies"`
	Provenance           string `json:"provenance"`
	SourceRef            string `json:"source_ref"`
	SkipMetricsIncrement bool   `json:"skip_metrics_increment"`
}

func (b FactRequest) common() (domain.HouseholdIdentity, domain.HouseholdContact, time.Time, domain.Provenance, error) {
	identity := domain.HouseholdIdentity{
		AgencyID:  b.AgencyID,
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Zip:       b.Zip,
	}
	contact := domain.HouseholdContact{
		Email:           b.Email,
		Phone:           b.Phone,
		MemberID:        b.MemberID,
		LeadSourceID:    b.LeadSourceID,
		LeadSourceLabel: b.LeadSourceLabel,
	}
	if b.AgencyID == "" || b.MemberID == "" {
		return identity, contact, time.Time{}, "", badRequest("agency_id and member_id are required")
	}
	date, err := parseDate("date", b.Date)
	if err != nil {
		return identity, contact, time.Time{}, "", err
	}
	prov, err := domain.ParseProvenance(b.Provenance)
	if err != nil {
		return identity, contact, time.Time{}, "", badRequest("%v", err)
	}
	return identity, contact, date, prov, nil
}

// QuoteInput converts the body into a quote fact.
func (b FactRequest) QuoteInput() (household.QuoteInput, error) {
	identity, contact, date, prov, err := b.common()
	if err != nil {
		return household.QuoteInput{}, err
	}
	return household.QuoteInput{
		Identity: identity,
		Contact:  contact,
		Fact: domain.QuoteFact{
			MemberID:             b.MemberID,
			QuoteDate:            date,
			ProductType:          b.ProductType,
			PremiumCents:         b.PremiumCents,
			Items:                b.Items,
			Provenance:           prov,
			SourceRef:            optional(b.SourceRef),
			SkipMetricsIncrement: b.SkipMetricsIncrement,
		},
	}, nil
}

// SaleInput converts the body into a sale fact.
func (b FactRequest) SaleInput() (household.SaleInput, error) {
	identity, contact, date, prov, err := b.common()
	if err != nil {
		return household.SaleInput{}, err
	}
	return household.SaleInput{
		Identity: identity,
		Contact:  contact,
		Fact: domain.SaleFact{
			MemberID:     b.MemberID,
			SaleDate:     date,
			ProductType:  b.ProductType,
			PremiumCents: b.PremiumCents,
			Items:        b.Items,
			Policies:     b.Policies,
			Provenance:   prov,
			SourceRef:    optional(b.SourceRef),
		},
	}, nil
}

// SignalRequest is the JSON body of a retention signal.
type SignalRequest struct {
	HouseholdID string     `json:"household_id"`
	Source      string     `json:"source"`
	Outcome     string     `json:"outcome"`
	OccurredAt  *time.Time `json:"occurred_at"`
}

// Signal converts the body into a retention signal.
func (b SignalRequest) Signal() (domain.RetentionSignal, error) {
	if b.HouseholdID == "" {
		return domain.RetentionSignal{}, badRequest("household_id is required")
	}
	sig := domain.RetentionSignal{
		Source:      domain.RetentionSource(b.Source),
		Outcome:     domain.RetentionOutcome(b.Outcome),
		HouseholdID: b.HouseholdID,
	}
	if b.OccurredAt != nil {
		sig.OccurredAt = b.OccurredAt.UTC()
	}
	return sig, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, badRequest("%s is required", field)
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, badRequest("%s must be YYYY-MM-DD, got %q", field, value)
	}
	return t, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
