package domain

import "time"

// Agency is the tenant owning members, forms, rules and households.
type Agency struct {
	ID                string
	Name              string
	LateCountsForPass bool
	CreatedAt         time.Time
}

// TeamMember is a producer within an agency.
type TeamMember struct {
	ID       string
	AgencyID string
	Name     string
	Role     string
}

// LeadSource is an agency's named lead-source attribution.
type LeadSource struct {
	ID       string
	AgencyID string
	Label    string
}

// Form is a scorecard form. FieldMappings maps a canonical metric key to
// the payload key this form uses for it. RuleVersionID optionally binds the
// form to a specific rule version.
type Form struct {
	ID            string
	AgencyID      string
	Name          string
	Role          string
	RuleVersionID *string
	FieldMappings map[MetricKey]string
	// SectionKey names the repeated quoted-households section in the payload.
	SectionKey string
}

// Submission is a raw payload as received. MetricRecordID points at the
// DailyMetricRecord it most recently produced; SupersedesID links to the
// previous final submission for the same form, member and date.
type Submission struct {
	ID             string
	AgencyID       string
	FormID         string
	MemberID       string
	WorkDate       time.Time
	Final          bool
	Late           bool
	Payload        map[string]any
	SubmittedAt    time.Time
	MetricRecordID *string
	SupersedesID   *string
}

// QuotedHouseholdDetail is one flattened element of a submission's
// repeated quoted-households section.
type QuotedHouseholdDetail struct {
	ID              string
	SubmissionID    string
	AgencyID        string
	MemberID        string
	WorkDate        time.Time
	Position        int
	FirstName       string
	LastName        string
	Zip             string
	ProductType     string
	Items           int64
	PremiumCents    int64
	LeadSourceID    *string
	LeadSourceLabel *string
	CreatedAt       time.Time
}

// BatchSummary is the caller-visible result of a multi-row operation.
type BatchSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Add accumulates other into s.
func (s *BatchSummary) Add(other BatchSummary) {
	s.Processed += other.Processed
	s.Skipped += other.Skipped
	s.Errors += other.Errors
}
