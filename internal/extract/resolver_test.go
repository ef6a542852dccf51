package extract

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

func quietResolver() *Resolver {
	return NewResolver(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return m
}

func resolutionFor(res *Result, key domain.MetricKey) domain.FieldResolution {
	for _, r := range res.Resolutions {
		if r.Key == key {
			return r
		}
	}
	return domain.FieldResolution{}
}

func TestResolve_Precedence(t *testing.T) {
	form := &domain.Form{
		ID:            "form-1",
		FieldMappings: map[domain.MetricKey]string{domain.MetricOutboundCalls: "dial_count"},
	}

	tests := []struct {
		name       string
		payload    string
		form       *domain.Form
		key        domain.MetricKey
		wantValue  float64
		wantSource domain.FieldSource
		wantAbsent bool
	}{
		{
			name:       "mapping wins over canonical",
			payload:    `{"dial_count": 40, "outbound_calls": 10}`,
			form:       form,
			key:        domain.MetricOutboundCalls,
			wantValue:  40,
			wantSource: domain.SourceMapping,
		},
		{
			name:       "missing mapped key falls through to canonical",
			payload:    `{"outbound_calls": 10}`,
			form:       form,
			key:        domain.MetricOutboundCalls,
			wantValue:  10,
			wantSource: domain.SourceCanonical,
		},
		{
			name:       "canonical wins over legacy",
			payload:    `{"talk_minutes": 95, "talkMinutes": 12, "talk_time": 3}`,
			key:        domain.MetricTalkMinutes,
			wantValue:  95,
			wantSource: domain.SourceCanonical,
		},
		{
			name:       "camelCase alias",
			payload:    `{"quotedHouseholds": "4"}`,
			key:        domain.MetricQuotedHouseholds,
			wantValue:  4,
			wantSource: domain.SourceLegacy,
		},
		{
			name:       "oldest alias",
			payload:    `{"dials": 7}`,
			key:        domain.MetricOutboundCalls,
			wantValue:  7,
			wantSource: domain.SourceLegacy,
		},
		{
			name:       "currency string",
			payload:    `{"premium_cents": "$1,250"}`,
			key:        domain.MetricPremiumCents,
			wantValue:  1250,
			wantSource: domain.SourceCanonical,
		},
		{
			name:       "blank canonical falls through to alias",
			payload:    `{"mini_reviews": "", "miniReviews": 2}`,
			key:        domain.MetricMiniReviews,
			wantValue:  2,
			wantSource: domain.SourceLegacy,
		},
		{
			name:       "non-numeric resolves absent",
			payload:    `{"items_sold": "lots"}`,
			key:        domain.MetricItemsSold,
			wantSource: domain.SourceInvalid,
			wantAbsent: true,
		},
		{
			name:       "nothing supplied",
			payload:    `{}`,
			key:        domain.MetricPoliciesSold,
			wantSource: domain.SourceAbsent,
			wantAbsent: true,
		},
		{
			name:       "explicit zero is present",
			payload:    `{"policies_sold": 0}`,
			key:        domain.MetricPoliciesSold,
			wantValue:  0,
			wantSource: domain.SourceCanonical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := quietResolver().Resolve(decode(t, tt.payload), tt.form)

			got := resolutionFor(res, tt.key)
			if got.Source != tt.wantSource {
				t.Errorf("source: expected %s, got %s", tt.wantSource, got.Source)
			}
			if tt.wantAbsent {
				if res.Values.Has(tt.key) {
					t.Errorf("expected %s absent, got %v", tt.key, res.Values[tt.key])
				}
				return
			}
			if !res.Values.Has(tt.key) {
				t.Fatalf("expected %s present", tt.key)
			}
			if res.Values[tt.key] != tt.wantValue {
				t.Errorf("value: expected %v, got %v", tt.wantValue, res.Values[tt.key])
			}
		})
	}
}

func TestResolve_LogsCoercionFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(nil, slog.New(slog.NewTextHandler(&buf, nil)))

	r.Resolve(map[string]any{"outbound_calls": "forty"}, nil)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected a warning, got %q", out)
	}
	if !strings.Contains(out, "raw_value=forty") {
		t.Errorf("expected raw value in log, got %q", out)
	}
}

func TestResolve_CustomKPIs(t *testing.T) {
	form := &domain.Form{
		FieldMappings: map[domain.MetricKey]string{"life_apps": "kpis.life"},
	}
	payload := decode(t, `{"custom": {"referrals": 3}, "kpis": {"life": 2}}`)

	res := quietResolver().Resolve(payload, form)

	if res.Values["referrals"] != 3 {
		t.Errorf("expected referrals 3, got %v", res.Values["referrals"])
	}
	if res.Values["life_apps"] != 2 {
		t.Errorf("expected life_apps 2, got %v", res.Values["life_apps"])
	}
	if !res.MappingConfigured {
		t.Error("expected mapping configured")
	}
}

func TestResolve_SectionRows(t *testing.T) {
	payload := decode(t, `{
		"quoted_households": 5,
		"quotedHouseholdDetails": [
			{"firstName": "Jane", "lastName": "Doe", "zip": 30301, "items": 2, "premium_cents": "$900"},
			{"household_name": "Smith, John", "product_type": "auto"},
			{"name": "Ana Lopez"},
			{},
			"not an object",
			{"first_name": "Bad", "items": "many"}
		]
	}`)

	res := quietResolver().Resolve(payload, nil)

	if res.Section != "quotedHouseholdDetails" {
		t.Fatalf("expected section quotedHouseholdDetails, got %q", res.Section)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(res.Rows))
	}
	if res.BlankRows != 1 {
		t.Errorf("expected 1 blank row, got %d", res.BlankRows)
	}
	if res.RowErrors != 2 {
		t.Errorf("expected 2 row errors, got %d", res.RowErrors)
	}

	first := res.Rows[0]
	if first.FirstName != "Jane" || first.LastName != "Doe" || first.Zip != "30301" {
		t.Errorf("unexpected first row: %+v", first)
	}
	if first.Items != 2 || first.PremiumCents != 900 {
		t.Errorf("unexpected first row values: %+v", first)
	}
	if res.Rows[1].FirstName != "John" || res.Rows[1].LastName != "Smith" {
		t.Errorf("expected Last, First split, got %+v", res.Rows[1])
	}
	if res.Rows[2].FirstName != "Ana" || res.Rows[2].LastName != "Lopez" {
		t.Errorf("expected First Last split, got %+v", res.Rows[2])
	}
	if res.Values[domain.MetricQuotedHouseholds] != 5 {
		t.Errorf("explicit count must win over rows, got %v", res.Values[domain.MetricQuotedHouseholds])
	}
}

func TestResolve_QuotedCountFromSection(t *testing.T) {
	form := &domain.Form{SectionKey: "households"}
	payload := decode(t, `{"households": [{"first_name": "A", "last_name": "B"}, {}, {"last_name": "C"}]}`)

	res := quietResolver().Resolve(payload, form)

	if res.Values[domain.MetricQuotedHouseholds] != 2 {
		t.Errorf("expected derived count 2, got %v", res.Values[domain.MetricQuotedHouseholds])
	}
	if got := resolutionFor(res, domain.MetricQuotedHouseholds).Source; got != domain.SourceSection {
		t.Errorf("expected section source, got %s", got)
	}
}

func TestResult_Audit(t *testing.T) {
	payload := decode(t, `{"outbound_calls": 10, "talkMinutes": 30, "quoted_list": [{"first_name": "A"}]}`)
	res := quietResolver().Resolve(payload, nil)

	audit := res.Audit("a-1", "sub-1", "form-1")

	if audit.MappingConfigured {
		t.Error("no mapping was configured")
	}
	if audit.FieldsExtracted != 3 {
		t.Errorf("expected 3 fields extracted, got %d", audit.FieldsExtracted)
	}
	if audit.SectionRows != 1 {
		t.Errorf("expected 1 section row, got %d", audit.SectionRows)
	}
	if len(audit.Resolutions) != len(domain.CanonicalMetrics()) {
		t.Errorf("expected one resolution per canonical key, got %d", len(audit.Resolutions))
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, first, last string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Doe, Jane", "Jane", "Doe"},
		{"Mary Ann Smith", "Mary Ann", "Smith"},
		{"Cher", "", "Cher"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		first, last := splitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("splitName(%q) = %q, %q; expected %q, %q", tt.in, first, last, tt.first, tt.last)
		}
	}
}
