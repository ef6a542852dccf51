// Package extract maps submitted payloads onto canonical metric fields.
//
// Payload key names have changed across product generations. The alias
// schema below is the only place that knows about those renames: the first
// alias of each key is the camelCase generation, the remaining aliases are
// the original names.
package extract

import "github.com/emiliopalmerini/salespulse/internal/domain"

// CustomSection is the payload object holding agency-custom KPI values.
const CustomSection = "custom"

// SectionKey is the canonical name of the repeated quoted-households section.
const SectionKey = "quoted_household_details"

// Schema resolves canonical names to their ordered deprecated aliases.
type Schema struct {
	metrics  map[domain.MetricKey][]string
	sections []string
	rows     map[rowField][]string
}

type rowField string

const (
	rowFirstName       rowField = "first_name"
	rowLastName        rowField = "last_name"
	rowFullName        rowField = "household_name"
	rowZip             rowField = "zip"
	rowProductType     rowField = "product_type"
	rowItems           rowField = "items"
	rowPremiumCents    rowField = "premium_cents"
	rowLeadSourceID    rowField = "lead_source_id"
	rowLeadSourceLabel rowField = "lead_source_label"
)

// DefaultSchema returns the alias schema for every known payload generation.
func DefaultSchema() *Schema {
	return &Schema{
		metrics: map[domain.MetricKey][]string{
			domain.MetricOutboundCalls:       {"outboundCalls", "calls_made", "dials"},
			domain.MetricTalkMinutes:         {"talkMinutes", "talk_time"},
			domain.MetricQuotedHouseholds:    {"quotedHouseholds", "quoted_count", "households_quoted"},
			domain.MetricItemsSold:           {"itemsSold", "sold_items"},
			domain.MetricPoliciesSold:        {"policiesSold", "sold_policies"},
			domain.MetricPremiumCents:        {"premiumCents", "written_premium_cents"},
			domain.MetricCrossSellsUncovered: {"crossSellsUncovered", "cross_sells"},
			domain.MetricMiniReviews:         {"miniReviews", "mini_review_count"},
		},
		sections: []string{SectionKey, "quotedHouseholdDetails", "quoted_list"},
		rows: map[rowField][]string{
			rowFirstName:       {"first_name", "firstName", "first"},
			rowLastName:        {"last_name", "lastName", "last"},
			rowFullName:        {"household_name", "householdName", "name"},
			rowZip:             {"zip", "zip_code", "zipCode", "postal_code"},
			rowProductType:     {"product_type", "productType", "policy_type", "product"},
			rowItems:           {"items", "items_quoted", "itemsQuoted"},
			rowPremiumCents:    {"premium_cents", "premiumCents", "premium_cents_quoted"},
			rowLeadSourceID:    {"lead_source_id", "leadSourceId"},
			rowLeadSourceLabel: {"lead_source_label", "leadSourceLabel", "lead_source", "leadSource"},
		},
	}
}

// Aliases returns the deprecated payload names for key, most recent first.
func (s *Schema) Aliases(key domain.MetricKey) []string {
	return s.metrics[key]
}

// sectionNames returns the candidate payload keys of the repeated section,
// preferring the form's configured key.
func (s *Schema) sectionNames(formKey string) []string {
	if formKey == "" {
		return s.sections
	}
	return append([]string{formKey}, s.sections...)
}
