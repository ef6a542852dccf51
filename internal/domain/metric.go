package domain

import (
	"sort"
	"time"
)

// DateLayout is the calendar-date format used for work dates everywhere.
const DateLayout = "2006-01-02"

// MetricKey names a metric value on a DailyMetricRecord. Canonical keys map
// to dedicated columns; any other key is an agency-custom KPI.
type MetricKey string

const (
	MetricOutboundCalls       MetricKey = "outbound_calls"
	MetricTalkMinutes         MetricKey = "talk_minutes"
	MetricQuotedHouseholds    MetricKey = "quoted_households"
	MetricItemsSold           MetricKey = "items_sold"
	MetricPoliciesSold        MetricKey = "policies_sold"
	MetricPremiumCents        MetricKey = "premium_cents"
	MetricCrossSellsUncovered MetricKey = "cross_sells_uncovered"
	MetricMiniReviews         MetricKey = "mini_reviews"
)

var canonicalMetrics = []MetricKey{
	MetricOutboundCalls,
	MetricTalkMinutes,
	MetricQuotedHouseholds,
	MetricItemsSold,
	MetricPoliciesSold,
	MetricPremiumCents,
	MetricCrossSellsUncovered,
	MetricMiniReviews,
}

// CanonicalMetrics returns the canonical metric keys in column order.
func CanonicalMetrics() []MetricKey {
	out := make([]MetricKey, len(canonicalMetrics))
	copy(out, canonicalMetrics)
	return out
}

// IsCanonical reports whether key is one of the canonical metric keys.
func (k MetricKey) IsCanonical() bool {
	for _, c := range canonicalMetrics {
		if c == k {
			return true
		}
	}
	return false
}

// MergePolicy decides how an incoming value combines with a stored one.
type MergePolicy int

const (
	// MergeMax keeps the larger of the stored and incoming value. Used for
	// counters that several producers may each increment.
	MergeMax MergePolicy = iota
	// MergeOverwrite replaces the stored value. Used for fields owned by a
	// single authoritative producer.
	MergeOverwrite
)

func (p MergePolicy) String() string {
	if p == MergeMax {
		return "max"
	}
	return "overwrite"
}

var additiveMetrics = map[MetricKey]bool{
	MetricQuotedHouseholds: true,
	MetricItemsSold:        true,
	MetricPoliciesSold:     true,
	MetricPremiumCents:     true,
}

// PolicyFor returns the merge policy of a metric key. Custom KPIs are
// scorecard-owned and therefore overwrite.
func PolicyFor(key MetricKey) MergePolicy {
	if additiveMetrics[key] {
		return MergeMax
	}
	return MergeOverwrite
}

// Producer identifies the call path writing into a DailyMetricRecord.
type Producer string

const (
	ProducerScorecard          Producer = "scorecard"
	ProducerQuickAdd           Producer = "quick_add"
	ProducerCallCenterSync     Producer = "call_center_sync"
	ProducerSalesSync          Producer = "sales_sync"
	ProducerHouseholdPromotion Producer = "household_promotion"
	ProducerBackfill           Producer = "backfill"
)

// Valid reports whether p is a known producer.
func (p Producer) Valid() bool {
	switch p {
	case ProducerScorecard, ProducerQuickAdd, ProducerCallCenterSync,
		ProducerSalesSync, ProducerHouseholdPromotion, ProducerBackfill:
		return true
	}
	return false
}

// Authoritative reports whether p may write overwrite-policy fields.
func (p Producer) Authoritative() bool {
	return p == ProducerScorecard || p == ProducerBackfill
}

// MetricValues holds metric values by key. A missing key means "no data
// supplied", which is distinct from a reported zero.
type MetricValues map[MetricKey]float64

// Get returns the value for key, or zero when absent.
func (v MetricValues) Get(key MetricKey) float64 {
	return v[key]
}

// Has reports whether a value was supplied for key.
func (v MetricValues) Has(key MetricKey) bool {
	_, ok := v[key]
	return ok
}

// Keys returns the present keys sorted by name.
func (v MetricValues) Keys() []MetricKey {
	keys := make([]MetricKey, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns an independent copy of v.
func (v MetricValues) Clone() MetricValues {
	out := make(MetricValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// MergeValues combines incoming into existing. Additive counters take the
// max of both sides, so a stale or partial writer never lowers a count.
// Overwrite fields take the incoming value, but only from an authoritative
// producer; a non-authoritative producer's overwrite values are returned as
// dropped. Absent incoming keys leave the stored value untouched.
func MergeValues(existing, incoming MetricValues, producer Producer) (merged MetricValues, dropped []MetricKey) {
	merged = existing.Clone()
	for _, key := range incoming.Keys() {
		val := incoming[key]
		switch PolicyFor(key) {
		case MergeMax:
			if cur, ok := merged[key]; !ok || val > cur {
				merged[key] = val
			}
		case MergeOverwrite:
			if !producer.Authoritative() {
				dropped = append(dropped, key)
				continue
			}
			merged[key] = val
		}
	}
	return merged, dropped
}

// DailyMetricRecord is the per-member-per-day aggregate. Unique per
// (member, work date); rows are merged into and never deleted.
type DailyMetricRecord struct {
	ID            string
	AgencyID      string
	MemberID      string
	WorkDate      time.Time
	RuleVersionID string
	Values        MetricValues
	CountedDay    bool
	Late          bool
	Hits          int
	Score         float64
	Pass          bool
	Streak        int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CustomKPIs returns the non-canonical values of the record.
func (r *DailyMetricRecord) CustomKPIs() map[string]float64 {
	out := make(map[string]float64)
	for k, v := range r.Values {
		if !k.IsCanonical() {
			out[string(k)] = v
		}
	}
	return out
}

// ParseDate parses a YYYY-MM-DD work date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate formats t as a YYYY-MM-DD work date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsLate reports whether a submission arriving at submittedAt is late for
// workDate, i.e. it arrived on a later calendar day.
func IsLate(workDate, submittedAt time.Time) bool {
	return Day(submittedAt).After(Day(workDate))
}
