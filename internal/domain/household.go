package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// HouseholdStatus is the lifecycle stage of a household.
type HouseholdStatus string

const (
	StatusLead   HouseholdStatus = "lead"
	StatusQuoted HouseholdStatus = "quoted"
	StatusSold   HouseholdStatus = "sold"
)

// Rank orders statuses lead < quoted < sold. Unknown statuses rank -1.
func (s HouseholdStatus) Rank() int {
	switch s {
	case StatusLead:
		return 0
	case StatusQuoted:
		return 1
	case StatusSold:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status.
func (s HouseholdStatus) Valid() bool {
	return s.Rank() >= 0
}

// ParseHouseholdStatus parses a status name.
func ParseHouseholdStatus(s string) (HouseholdStatus, error) {
	st := HouseholdStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// HouseholdIdentity is the deduplication identity of a household.
type HouseholdIdentity struct {
	AgencyID  string
	FirstName string
	LastName  string
	Zip       string
}

// Key returns the normalized lastname_firstname_zip key. Casing, spacing
// and punctuation do not affect the key; the zip keeps its first five digits.
func (id HouseholdIdentity) Key() (string, error) {
	last := normalizeNamePart(id.LastName)
	first := normalizeNamePart(id.FirstName)
	if id.AgencyID == "" || last == "" || first == "" {
		return "", fmt.Errorf("%w: agency, first and last name are required", ErrInvalidIdentity)
	}
	return last + "_" + first + "_" + normalizeZip(id.Zip), nil
}

func normalizeNamePart(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeZip(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
			if b.Len() == 5 {
				break
			}
		}
	}
	return b.String()
}

// Household is a deduplicated prospect or customer within an agency.
type Household struct {
	ID               string
	AgencyID         string
	HouseholdKey     string
	FirstName        string
	LastName         string
	Zip              string
	Email            string
	Phone            string
	Status           HouseholdStatus
	FirstQuoteDate   *time.Time
	SoldDate         *time.Time
	AssignedMemberID *string
	LeadSourceID     *string
	LeadSourceLabel  *string
	NeedsAttention   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HouseholdContact carries optional attributes supplied by a writer.
type HouseholdContact struct {
	Email           string
	Phone           string
	MemberID        string
	LeadSourceID    string
	LeadSourceLabel string
}

// NewHousehold creates a lead household for identity.
func NewHousehold(id string, identity HouseholdIdentity, now time.Time) (*Household, error) {
	key, err := identity.Key()
	if err != nil {
		return nil, err
	}
	return &Household{
		ID:             id,
		AgencyID:       identity.AgencyID,
		HouseholdKey:   key,
		FirstName:      strings.TrimSpace(identity.FirstName),
		LastName:       strings.TrimSpace(identity.LastName),
		Zip:            strings.TrimSpace(identity.Zip),
		Status:         StatusLead,
		NeedsAttention: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasLeadSource reports whether any lead-source attribution is set.
func (h *Household) HasLeadSource() bool {
	return h.LeadSourceID != nil || h.LeadSourceLabel != nil
}

// MergeContact fills unset attributes from c. Set attributes, including an
// existing lead-source attribution, are never replaced.
func (h *Household) MergeContact(c HouseholdContact) {
	if h.Email == "" {
		h.Email = strings.TrimSpace(c.Email)
	}
	if h.Phone == "" {
		h.Phone = strings.TrimSpace(c.Phone)
	}
	if h.AssignedMemberID == nil && c.MemberID != "" {
		m := c.MemberID
		h.AssignedMemberID = &m
	}
	if !h.HasLeadSource() {
		if c.LeadSourceID != "" {
			id := c.LeadSourceID
			h.LeadSourceID = &id
		}
		if label := strings.TrimSpace(c.LeadSourceLabel); label != "" {
			h.LeadSourceLabel = &label
		}
	}
	h.NeedsAttention = !h.HasLeadSource()
}

// Promote moves the household forward to target and stamps the
// first-quote or sold date when unset. It never lowers the status. It
// returns the previous status and whether the status changed.
func (h *Household) Promote(target HouseholdStatus, on time.Time) (HouseholdStatus, bool) {
	from := h.Status
	day := Day(on)
	switch target {
	case StatusQuoted:
		if h.FirstQuoteDate == nil {
			h.FirstQuoteDate = &day
		}
	case StatusSold:
		if h.SoldDate == nil {
			h.SoldDate = &day
		}
	}
	if target.Rank() > from.Rank() {
		h.Status = target
		return from, true
	}
	return from, false
}

// IsGhost reports whether a lead household has no linked facts.
func (h *Household) IsGhost(quotes, sales int) bool {
	return h.Status == StatusLead && quotes == 0 && sales == 0
}
