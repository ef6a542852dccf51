package web

import (
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/flatten"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/pipeline"
)

type recordView struct {
	ID            string             `json:"id"`
	AgencyID      string             `json:"agency_id"`
	MemberID      string             `json:"member_id"`
	WorkDate      string             `json:"work_date"`
	RuleVersionID string             `json:"rule_version_id"`
	Values        map[string]float64 `json:"values"`
	CountedDay    bool               `json:"counted_day"`
	Late          bool               `json:"late"`
	Hits          int                `json:"hits"`
	Score         float64            `json:"score"`
	Pass          bool               `json:"pass"`
	Streak        int                `json:"streak"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newRecordView(rec *domain.DailyMetricRecord) *recordView {
	if rec == nil {
		return nil
	}
	values := make(map[string]float64, len(rec.Values))
	for k, v := range rec.Values {
		values[string(k)] = v
	}
	return &recordView{
		ID:            rec.ID,
		AgencyID:      rec.AgencyID,
		MemberID:      rec.MemberID,
		WorkDate:      domain.FormatDate(rec.WorkDate),
		RuleVersionID: rec.RuleVersionID,
		Values:        values,
		CountedDay:    rec.CountedDay,
		Late:          rec.Late,
		Hits:          rec.Hits,
		Score:         rec.Score,
		Pass:          rec.Pass,
		Streak:        rec.Streak,
		UpdatedAt:     rec.UpdatedAt,
	}
}

type flattenView struct {
	Deleted int64               `json:"deleted"`
	Details domain.BatchSummary `json:"details"`
	Facts   domain.BatchSummary `json:"facts"`
}

func newFlattenView(res *flatten.Result) *flattenView {
	if res == nil {
		return nil
	}
	return &flattenView{Deleted: res.Deleted, Details: res.Details, Facts: res.Facts}
}

type submissionView struct {
	SubmissionID    string       `json:"submission_id"`
	Draft           bool         `json:"draft"`
	Late            bool         `json:"late"`
	SupersedesID    *string      `json:"supersedes_id,omitempty"`
	FieldsExtracted int          `json:"fields_extracted"`
	Skipped         bool         `json:"skipped"`
	Dropped         []string     `json:"dropped,omitempty"`
	Record          *recordView  `json:"record,omitempty"`
	Flatten         *flattenView `json:"flatten,omitempty"`
}

func newSubmissionView(out *pipeline.Outcome) submissionView {
	v := submissionView{
		SubmissionID: out.Submission.ID,
		Draft:        out.Draft,
		Late:         out.Submission.Late,
		SupersedesID: out.Submission.SupersedesID,
		Flatten:      newFlattenView(out.Flatten),
	}
	if out.Audit != nil {
		v.FieldsExtracted = out.Audit.FieldsExtracted
	}
	if out.Merge != nil {
		v.Skipped = out.Merge.Skipped
		v.Record = newRecordView(out.Merge.Record)
		for _, k := range out.Merge.Dropped {
			v.Dropped = append(v.Dropped, string(k))
		}
	}
	return v
}

type quoteView struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	QuoteDate    string  `json:"quote_date"`
	ProductType  string  `json:"product_type,omitempty"`
	PremiumCents int64   `json:"premium_cents"`
	Items        int64   `json:"items"`
	Provenance   string  `json:"provenance"`
	SourceRef    *string `json:"source_ref,omitempty"`
}

type saleView struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	SaleDate     string  `json:"sale_date"`
	ProductType  string  `json:"product_type,omitempty"`
	PremiumCents int64   `json:"premium_cents"`
	Items        int64   `json:"items"`
	Policies     int64   `json:"policies"`
	Provenance   string  `json:"provenance"`
	SourceRef    *string `json:"source_ref,omitempty"`
}

type householdView struct {
	ID               string      `json:"id"`
	AgencyID         string      `json:"agency_id"`
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	Zip              string      `json:"zip,omitempty"`
	Email            string      `json:"email,omitempty"`
	Phone            string      `json:"phone,omitempty"`
	Status           string      `json:"status"`
	FirstQuoteDate   *string     `json:"first_quote_date,omitempty"`
	SoldDate         *string     `json:"sold_date,omitempty"`
	AssignedMemberID *string     `json:"assigned_member_id,omitempty"`
	LeadSourceID     *string     `json:"lead_source_id,omitempty"`
	LeadSourceLabel  *string     `json:"lead_source_label,omitempty"`
	NeedsAttention   bool        `json:"needs_attention"`
	Quotes           []quoteView `json:"quotes,omitempty"`
	Sales            []saleView  `json:"sales,omitempty"`
}

func newHouseholdView(h *domain.Household) householdView {
	return householdView{
		ID:               h.ID,
		AgencyID:         h.AgencyID,
		FirstName:        h.FirstName,
		LastName:         h.LastName,
		Zip:              h.Zip,
		Email:            h.Email,
		Phone:            h.Phone,
		Status:           string(h.Status),
		FirstQuoteDate:   formatOptionalDate(h.FirstQuoteDate),
		SoldDate:         formatOptionalDate(h.SoldDate),
		AssignedMemberID: h.AssignedMemberID,
		LeadSourceID:     h.LeadSourceID,
		LeadSourceLabel:  h.LeadSourceLabel,
		NeedsAttention:   h.NeedsAttention,
	}
}

func newHouseholdDetail(v *household.View) householdView {
	out := newHouseholdView(v.Household)
	for _, q := range v.Quotes {
		out.Quotes = append(out.Quotes, quoteView{
			ID:           q.ID,
			MemberID:     q.MemberID,
			QuoteDate:    domain.FormatDate(q.QuoteDate),
			ProductType:  q.ProductType,
			PremiumCents: q.PremiumCents,
			Items:        q.Items,
			Provenance:   string(q.Provenance),
			SourceRef:    q.SourceRef,
		})
	}
	for _, s := range v.Sales {
		out.Sales = append(out.Sales, saleView{
			ID:           s.ID,
			MemberID:     s.MemberID,
			SaleDate:     domain.FormatDate(s.SaleDate),
			ProductType:  s.ProductType,
			PremiumCents: s.PremiumCents,
			Items:        s.Items,
			Policies:     s.Policies,
			Provenance:   string(s.Provenance),
			SourceRef:    s.SourceRef,
		})
	}
	return out
}

type factView struct {
	HouseholdID string `json:"household_id"`
	Created     bool   `json:"household_created"`
	FactID      string `json:"fact_id"`
	Inserted    bool   `json:"inserted"`
}

type auditView struct {
	ID                 string                   `json:"id"`
	FormID             string                   `json:"form_id"`
	MappingConfigured  bool                     `json:"mapping_configured"`
	FieldsExtracted    int                      `json:"fields_extracted"`
	Resolutions        []domain.FieldResolution `json:"resolutions"`
	SectionRows        int                      `json:"section_rows"`
	SectionRowsSkipped int                      `json:"section_rows_skipped"`
	SectionRowErrors   int                      `json:"section_row_errors"`
	CreatedAt          time.Time                `json:"created_at"`
}

func newAuditView(a *domain.AuditRecord) auditView {
	return auditView{
		ID:                 a.ID,
		FormID:             a.FormID,
		MappingConfigured:  a.MappingConfigured,
		FieldsExtracted:    a.FieldsExtracted,
		Resolutions:        a.Resolutions,
		SectionRows:        a.SectionRows,
		SectionRowsSkipped: a.SectionRowsSkipped,
		SectionRowErrors:   a.SectionRowErrors,
		CreatedAt:          a.CreatedAt,
	}
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatDate(*t)
	return &s
}
