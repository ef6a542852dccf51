package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/ports"
)

// AgencyFile is the YAML document describing one or more agencies.
type AgencyFile struct {
	Agencies []AgencyConfig `yaml:"agencies"`
}

// AgencyConfig describes one agency and everything it owns.
type AgencyConfig struct {
	ID                string             `yaml:"id"`
	Name              string             `yaml:"name"`
	LateCountsForPass bool               `yaml:"late_counts_for_pass"`
	Members           []MemberConfig     `yaml:"members"`
	LeadSources       []LeadSourceConfig `yaml:"lead_sources"`
	Rules             []RuleConfig       `yaml:"rules"`
	Forms             []FormConfig       `yaml:"forms"`
	Targets           []TargetConfig     `yaml:"targets"`
}

type MemberConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

type LeadSourceConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
}

// RuleConfig is one scoring rule version. Versions are immutable: an ID
// already stored is left untouched on import.
type RuleConfig struct {
	ID                     string             `yaml:"id"`
	Role                   string             `yaml:"role"`
	SelectedKeys           []string           `yaml:"selected_keys"`
	Weights                map[string]float64 `yaml:"weights"`
	RequiredHits           int                `yaml:"required_hits"`
	CountedWeekdays        []string           `yaml:"counted_weekdays"`
	WeekendCountsIfPresent bool               `yaml:"weekend_counts_if_present"`
}

type FormConfig struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Role          string            `yaml:"role"`
	RuleID        string            `yaml:"rule_id"`
	FieldMappings map[string]string `yaml:"field_mappings"`
	SectionKey    string            `yaml:"section_key"`
}

// TargetConfig is a pass bar. An empty member applies agency-wide.
type TargetConfig struct {
	Member string  `yaml:"member"`
	Key    string  `yaml:"key"`
	Value  float64 `yaml:"value"`
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	Agencies     int
	Members      int
	LeadSources  int
	RulesCreated int
	RulesKept    int
	Forms        int
	Targets      int
}

// LoadAgencyFile reads and validates an agency YAML file.
func LoadAgencyFile(path string) (*AgencyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agency config: %w", err)
	}
	return ParseAgencyFile(data)
}

// ParseAgencyFile parses and validates agency YAML.
func ParseAgencyFile(data []byte) (*AgencyFile, error) {
	var f AgencyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse agency config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks references and rule consistency across the file.
func (f *AgencyFile) Validate() error {
	if len(f.Agencies) == 0 {
		return errors.New("agency config lists no agencies")
	}
	var errs []error
	for _, a := range f.Agencies {
		if a.ID == "" || a.Name == "" {
			errs = append(errs, errors.New("agency id and name are required"))
			continue
		}
		members := make(map[string]bool)
		for _, m := range a.Members {
			if m.ID == "" || m.Role == "" {
				errs = append(errs, fmt.Errorf("agency %s: member id and role are required", a.ID))
			}
			members[m.ID] = true
		}
		rules := make(map[string]bool)
		for _, rc := range a.Rules {
			rule, err := rc.toDomain(a.ID)
			if err == nil {
				err = rule.Validate()
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("agency %s rule %s: %w", a.ID, rc.ID, err))
			}
			rules[rc.ID] = true
		}
		for _, fc := range a.Forms {
			if fc.ID == "" || fc.Role == "" {
				errs = append(errs, fmt.Errorf("agency %s: form id and role are required", a.ID))
			}
			if fc.RuleID != "" && !rules[fc.RuleID] {
				errs = append(errs, fmt.Errorf("agency %s form %s: unknown rule %q", a.ID, fc.ID, fc.RuleID))
			}
		}
		for _, tc := range a.Targets {
			if tc.Key == "" {
				errs = append(errs, fmt.Errorf("agency %s: target key is required", a.ID))
			}
			if tc.Member != "" && !members[tc.Member] {
				errs = append(errs, fmt.Errorf("agency %s: target for unknown member %q", a.ID, tc.Member))
			}
		}
	}
	return errors.Join(errs...)
}

// Import writes the file's configuration in one transaction.
func (f *AgencyFile) Import(ctx context.Context, store ports.Store) (*ImportSummary, error) {
	var s *ImportSummary
	err := store.WithinTx(ctx, func(r *ports.Repositories) error {
		s = &ImportSummary{}
		for _, a := range f.Agencies {
			if err := importAgency(ctx, r, a, s); err != nil {
				return fmt.Errorf("agency %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import agency config: %w", err)
	}
	return s, nil
}

func importAgency(ctx context.Context, r *ports.Repositories, a AgencyConfig, s *ImportSummary) error {
	if err := r.Agencies.Upsert(ctx, &domain.Agency{
		ID:                a.ID,
		Name:              a.Name,
		LateCountsForPass: a.LateCountsForPass,
		CreatedAt:         time.Now().UTC(),
	}); err != nil {
		return err
	}
	s.Agencies++

	for _, m := range a.Members {
		if err := r.Members.Upsert(ctx, &domain.TeamMember{ID: m.ID, AgencyID: a.ID, Name: m.Name, Role: m.Role}); err != nil {
			return err
		}
		s.Members++
	}
	for _, ls := range a.LeadSources {
		if err := r.LeadSources.Upsert(ctx, &domain.LeadSource{ID: ls.ID, AgencyID: a.ID, Label: ls.Label}); err != nil {
			return err
		}
		s.LeadSources++
	}
	for _, rc := range a.Rules {
		existing, err := r.Rules.GetByID(ctx, rc.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			s.RulesKept++
			continue
		}
		rule, err := rc.toDomain(a.ID)
		if err != nil {
			return err
		}
		if err := r.Rules.Create(ctx, rule); err != nil {
			return err
		}
		s.RulesCreated++
	}
	for _, fc := range a.Forms {
		form := &domain.Form{
			ID:            fc.ID,
			AgencyID:      a.ID,
			Name:          fc.Name,
			Role:          fc.Role,
			FieldMappings: make(map[domain.MetricKey]string, len(fc.FieldMappings)),
			SectionKey:    fc.SectionKey,
		}
		if fc.RuleID != "" {
			id := fc.RuleID
			form.RuleVersionID = &id
		}
		for k, v := range fc.FieldMappings {
			form.FieldMappings[domain.MetricKey(k)] = v
		}
		if err := r.Forms.Upsert(ctx, form); err != nil {
			return err
		}
		s.Forms++
	}
	for _, tc := range a.Targets {
		t := &domain.Target{AgencyID: a.ID, Key: domain.MetricKey(tc.Key), Value: tc.Value}
		if tc.Member != "" {
			m := tc.Member
			t.MemberID = &m
		}
		if err := r.Targets.Upsert(ctx, t); err != nil {
			return err
		}
		s.Targets++
	}
	return nil
}

func (rc RuleConfig) toDomain(agencyID string) (*domain.ScoringRule, error) {
	if rc.ID == "" {
		return nil, errors.New("rule id is required")
	}
	rule := &domain.ScoringRule{
		ID:                     rc.ID,
		AgencyID:               agencyID,
		Role:                   rc.Role,
		RequiredHits:           rc.RequiredHits,
		WeekendCountsIfPresent: rc.WeekendCountsIfPresent,
		Weights:                make(map[domain.MetricKey]float64, len(rc.Weights)),
	}
	for _, k := range rc.SelectedKeys {
		rule.SelectedKeys = append(rule.SelectedKeys, domain.MetricKey(k))
	}
	for k, w := range rc.Weights {
		rule.Weights[domain.MetricKey(k)] = w
	}
	for _, d := range rc.CountedWeekdays {
		wd, err := ParseWeekday(d)
		if err != nil {
			return nil, err
		}
		rule.CountedWeekdays = append(rule.CountedWeekdays, wd)
	}
	return rule, nil
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
