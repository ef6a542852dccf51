package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const ruleColumns = `id, agency_id, role, version, selected_keys, weights, required_hits,
	counted_weekdays, weekend_counts_if_present, created_at`

type RuleRepository struct {
	db DBTX
}

func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create stores a new rule version. A zero Version is assigned the next
// version for (agency, role).
func (r *RuleRepository) Create(ctx context.Context, rule *domain.ScoringRule) error {
	if rule.Version == 0 {
		var maxVersion sql.NullInt64
		err := r.db.QueryRowContext(ctx, `
			SELECT MAX(version) FROM scoring_rule_versions WHERE agency_id = ? AND role = ?
		`, rule.AgencyID, rule.Role).Scan(&maxVersion)
		if err != nil {
			return fmt.Errorf("failed to read latest rule version: %w", err)
		}
		rule.Version = int(maxVersion.Int64) + 1
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	keys := rule.SelectedKeys
	if keys == nil {
		keys = []domain.MetricKey{}
	}
	selected, err := marshalJSON(keys)
	if err != nil {
		return err
	}
	weights := rule.Weights
	if weights == nil {
		weights = map[domain.MetricKey]float64{}
	}
	encodedWeights, err := marshalJSON(weights)
	if err != nil {
		return err
	}
	days := make([]int, len(rule.CountedWeekdays))
	for i, d := range rule.CountedWeekdays {
		days[i] = int(d)
	}
	weekdays, err := marshalJSON(days)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scoring_rule_versions (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.AgencyID, rule.Role, rule.Version, selected, encodedWeights,
		rule.RequiredHits, weekdays, boolInt(rule.WeekendCountsIfPresent), formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create rule version: %w", err)
	}
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.ScoringRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM scoring_rule_versions WHERE id = ?`, id)
	return scanRule(row)
}

func (r *RuleRepository) GetLatest(ctx context.Context, agencyID, role string) (*domain.ScoringRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+` FROM scoring_rule_versions
		WHERE agency_id = ? AND role = ?
		ORDER BY version DESC LIMIT 1
	`, agencyID, role)
	return scanRule(row)
}

func scanRule(row *sql.Row) (*domain.ScoringRule, error) {
	var rule domain.ScoringRule
	var selected, weights, weekdays, createdAt string
	var weekend int64
	err := row.Scan(&rule.ID, &rule.AgencyID, &rule.Role, &rule.Version, &selected, &weights,
		&rule.RequiredHits, &weekdays, &weekend, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rule version: %w", err)
	}

	if err := unmarshalJSON(selected, &rule.SelectedKeys); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(weights, &rule.Weights); err != nil {
		return nil, err
	}
	var days []int
	if err := unmarshalJSON(weekdays, &days); err != nil {
		return nil, err
	}
	for _, d := range days {
		rule.CountedWeekdays = append(rule.CountedWeekdays, time.Weekday(d))
	}
	rule.WeekendCountsIfPresent = weekend == 1
	rule.CreatedAt = parseTime(createdAt)
	return &rule, nil
}

type TargetRepository struct {
	db DBTX
}

func NewTargetRepository(db DBTX) *TargetRepository {
	return &TargetRepository{db: db}
}

func (r *TargetRepository) Upsert(ctx context.Context, t *domain.Target) error {
	member := ""
	if t.MemberID != nil {
		member = *t.MemberID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO targets (agency_id, member_id, metric_key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (agency_id, member_id, metric_key) DO UPDATE SET value = excluded.value
	`, t.AgencyID, member, string(t.Key), t.Value)
	if err != nil {
		return fmt.Errorf("failed to upsert target: %w", err)
	}
	return nil
}

func (r *TargetRepository) ListForMember(ctx context.Context, agencyID, memberID string) ([]domain.Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agency_id, member_id, metric_key, value FROM targets
		WHERE agency_id = ? AND (member_id = '' OR member_id = ?)
		ORDER BY metric_key, member_id
	`, agencyID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		var member, key string
		if err := rows.Scan(&t.AgencyID, &member, &key, &t.Value); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		t.Key = domain.MetricKey(key)
		if member != "" {
			t.MemberID = &member
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
