package domain

import (
	"testing"
	"time"
)

func TestMergeValues_AdditiveIsMaxInEitherOrder(t *testing.T) {
	a := MetricValues{MetricQuotedHouseholds: 3, MetricItemsSold: 1}
	b := MetricValues{MetricQuotedHouseholds: 1, MetricItemsSold: 4}

	ab, _ := MergeValues(a, b, ProducerScorecard)
	ba, _ := MergeValues(b, a, ProducerScorecard)

	for _, key := range []MetricKey{MetricQuotedHouseholds, MetricItemsSold} {
		if ab[key] != ba[key] {
			t.Errorf("%s: order dependent result %v vs %v", key, ab[key], ba[key])
		}
	}
	if ab[MetricQuotedHouseholds] != 3 {
		t.Errorf("quoted_households: expected 3, got %v", ab[MetricQuotedHouseholds])
	}
	if ab[MetricItemsSold] != 4 {
		t.Errorf("items_sold: expected 4, got %v", ab[MetricItemsSold])
	}
}

func TestMergeValues(t *testing.T) {
	tests := []struct {
		name        string
		existing    MetricValues
		incoming    MetricValues
		producer    Producer
		expected    MetricValues
		wantDropped []MetricKey
	}{
		{
			name:     "stale writer never lowers a counter",
			existing: MetricValues{MetricQuotedHouseholds: 4},
			incoming: MetricValues{MetricQuotedHouseholds: 1},
			producer: ProducerQuickAdd,
			expected: MetricValues{MetricQuotedHouseholds: 4},
		},
		{
			name:     "scorecard overwrites authoritative fields",
			existing: MetricValues{MetricOutboundCalls: 80, MetricTalkMinutes: 120},
			incoming: MetricValues{MetricOutboundCalls: 60},
			producer: ProducerScorecard,
			expected: MetricValues{MetricOutboundCalls: 60, MetricTalkMinutes: 120},
		},
		{
			name:     "explicit zero overwrites",
			existing: MetricValues{MetricOutboundCalls: 80},
			incoming: MetricValues{MetricOutboundCalls: 0},
			producer: ProducerScorecard,
			expected: MetricValues{MetricOutboundCalls: 0},
		},
		{
			name:        "non-authoritative producer cannot overwrite",
			existing:    MetricValues{MetricOutboundCalls: 80},
			incoming:    MetricValues{MetricOutboundCalls: 10, MetricItemsSold: 2},
			producer:    ProducerSalesSync,
			expected:    MetricValues{MetricOutboundCalls: 80, MetricItemsSold: 2},
			wantDropped: []MetricKey{MetricOutboundCalls},
		},
		{
			name:     "custom kpis overwrite",
			existing: MetricValues{"life_apps": 2},
			incoming: MetricValues{"life_apps": 1},
			producer: ProducerScorecard,
			expected: MetricValues{"life_apps": 1},
		},
		{
			name:     "absent incoming keeps stored",
			existing: MetricValues{MetricPremiumCents: 125000},
			incoming: MetricValues{},
			producer: ProducerScorecard,
			expected: MetricValues{MetricPremiumCents: 125000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := MergeValues(tt.existing, tt.incoming, tt.producer)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d values, got %d (%v)", len(tt.expected), len(got), got)
			}
			for k, v := range tt.expected {
				if got[k] != v {
					t.Errorf("%s: expected %v, got %v", k, v, got[k])
				}
			}
			if len(dropped) != len(tt.wantDropped) {
				t.Fatalf("expected dropped %v, got %v", tt.wantDropped, dropped)
			}
			for i := range dropped {
				if dropped[i] != tt.wantDropped[i] {
					t.Errorf("dropped[%d]: expected %s, got %s", i, tt.wantDropped[i], dropped[i])
				}
			}
		})
	}
}

func TestMergeValues_DoesNotMutateInputs(t *testing.T) {
	existing := MetricValues{MetricQuotedHouseholds: 1}
	incoming := MetricValues{MetricQuotedHouseholds: 5}

	_, _ = MergeValues(existing, incoming, ProducerScorecard)

	if existing[MetricQuotedHouseholds] != 1 {
		t.Errorf("existing mutated: %v", existing)
	}
}

func TestPolicyFor(t *testing.T) {
	if PolicyFor(MetricQuotedHouseholds) != MergeMax {
		t.Error("quoted_households should merge by max")
	}
	if PolicyFor(MetricItemsSold) != MergeMax {
		t.Error("items_sold should merge by max")
	}
	if PolicyFor(MetricTalkMinutes) != MergeOverwrite {
		t.Error("talk_minutes should overwrite")
	}
	if PolicyFor("custom_kpi") != MergeOverwrite {
		t.Error("custom kpis should overwrite")
	}
}

func TestIsLate(t *testing.T) {
	work := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)
	if IsLate(work, time.Date(2025, 9, 5, 23, 59, 0, 0, time.UTC)) {
		t.Error("same-day submission should not be late")
	}
	if !IsLate(work, time.Date(2025, 9, 6, 0, 1, 0, 0, time.UTC)) {
		t.Error("next-day submission should be late")
	}
}

func TestDailyMetricRecord_CustomKPIs(t *testing.T) {
	r := &DailyMetricRecord{Values: MetricValues{MetricOutboundCalls: 10, "life_apps": 2}}
	custom := r.CustomKPIs()
	if len(custom) != 1 || custom["life_apps"] != 2 {
		t.Errorf("unexpected custom kpis: %v", custom)
	}
}
