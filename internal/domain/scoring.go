package domain

import (
	"fmt"
	"time"
)

// defaultCountedWeekdays applies when a rule does not list weekdays.
var defaultCountedWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}

// ScoringRule is one immutable version of an agency's scoring rule for a
// role. DailyMetricRecords reference the version active when they were
// first written.
type ScoringRule struct {
	ID                     string
	AgencyID               string
	Role                   string
	Version                int
	SelectedKeys           []MetricKey
	Weights                map[MetricKey]float64
	RequiredHits           int
	CountedWeekdays        []time.Weekday
	WeekendCountsIfPresent bool
	CreatedAt              time.Time
}

// Validate checks the rule's internal consistency.
func (r *ScoringRule) Validate() error {
	if r.AgencyID == "" || r.Role == "" {
		return fmt.Errorf("%w: agency and role are required", ErrInvalidRule)
	}
	if r.RequiredHits < 0 {
		return fmt.Errorf("%w: required hits must not be negative", ErrInvalidRule)
	}
	if r.RequiredHits > len(r.SelectedKeys) {
		return fmt.Errorf("%w: required hits %d exceeds %d selected keys",
			ErrInvalidRule, r.RequiredHits, len(r.SelectedKeys))
	}
	seen := make(map[MetricKey]bool, len(r.SelectedKeys))
	for _, k := range r.SelectedKeys {
		if seen[k] {
			return fmt.Errorf("%w: duplicate selected key %q", ErrInvalidRule, k)
		}
		seen[k] = true
	}
	return nil
}

// Weekdays returns the configured counted weekdays, defaulting to Mon-Fri.
func (r *ScoringRule) Weekdays() []time.Weekday {
	if r == nil || len(r.CountedWeekdays) == 0 {
		return defaultCountedWeekdays
	}
	return r.CountedWeekdays
}

// IsCountedWeekday reports whether wd counts by default.
func (r *ScoringRule) IsCountedWeekday(wd time.Weekday) bool {
	for _, d := range r.Weekdays() {
		if d == wd {
			return true
		}
	}
	return false
}

// IsCountedDay reports whether date counts for scoring. Weekend days that
// are not configured still count when a submission is present and the rule
// allows it.
func (r *ScoringRule) IsCountedDay(date time.Time, present bool) bool {
	wd := date.Weekday()
	if r.IsCountedWeekday(wd) {
		return true
	}
	weekend := wd == time.Saturday || wd == time.Sunday
	return r != nil && weekend && present && r.WeekendCountsIfPresent
}

// WeightFor returns the configured weight of key, defaulting to 1.
func (r *ScoringRule) WeightFor(key MetricKey) float64 {
	if w, ok := r.Weights[key]; ok {
		return w
	}
	return 1
}

// Target is the pass bar for one metric key. MemberID nil means agency default.
type Target struct {
	AgencyID string
	MemberID *string
	Key      MetricKey
	Value    float64
}

// TargetSet resolves targets for one member: member-specific values
// override agency defaults.
type TargetSet struct {
	defaults map[MetricKey]float64
	member   map[MetricKey]float64
}

// NewTargetSet builds the set for memberID from an agency's targets.
func NewTargetSet(targets []Target, memberID string) TargetSet {
	ts := TargetSet{
		defaults: make(map[MetricKey]float64),
		member:   make(map[MetricKey]float64),
	}
	for _, t := range targets {
		switch {
		case t.MemberID == nil:
			ts.defaults[t.Key] = t.Value
		case *t.MemberID == memberID:
			ts.member[t.Key] = t.Value
		}
	}
	return ts
}

// Resolve returns the target for key and whether one is configured.
func (ts TargetSet) Resolve(key MetricKey) (float64, bool) {
	if v, ok := ts.member[key]; ok {
		return v, true
	}
	v, ok := ts.defaults[key]
	return v, ok
}

// KeyResult is the scoring outcome for a single selected key.
type KeyResult struct {
	Key       MetricKey
	Value     float64
	Target    float64
	HasTarget bool
	Hit       bool
	Weight    float64
}

// ScoreResult is the derived scoring output for a record.
type ScoreResult struct {
	Hits   int
	Score  float64
	Pass   bool
	Keys   []KeyResult
	Forced bool // pass forced false by the late policy
}

// Score evaluates values against rule and targets. A key hits when its
// value meets or exceeds its resolved target; keys without a target never
// hit. Pass requires at least RequiredHits hits, not every key. A rule with
// no selected keys passes by default. A late submission fails when the
// agency does not let late days count.
func Score(values MetricValues, rule *ScoringRule, targets TargetSet, late, lateCountsForPass bool) ScoreResult {
	var res ScoreResult
	if rule == nil || len(rule.SelectedKeys) == 0 {
		res.Pass = true
	} else {
		for _, key := range rule.SelectedKeys {
			kr := KeyResult{Key: key, Value: values.Get(key), Weight: rule.WeightFor(key)}
			kr.Target, kr.HasTarget = targets.Resolve(key)
			kr.Hit = kr.HasTarget && kr.Value >= kr.Target
			if kr.Hit {
				res.Hits++
				res.Score += kr.Weight
			}
			res.Keys = append(res.Keys, kr)
		}
		res.Pass = res.Hits >= rule.RequiredHits
	}
	if late && !lateCountsForPass && res.Pass {
		res.Pass = false
		res.Forced = true
	}
	return res
}
