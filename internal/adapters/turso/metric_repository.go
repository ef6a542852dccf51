package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
)

const metricColumns = `id, agency_id, member_id, work_date, rule_version_id,
	outbound_calls, talk_minutes, quoted_households, items_sold, policies_sold,
	premium_cents, cross_sells_uncovered, mini_reviews, custom_kpis,
	counted_day, late, hits, score, pass, streak, created_at, updated_at`

type DailyMetricRepository struct {
	db DBTX
}

func NewDailyMetricRepository(db DBTX) *DailyMetricRepository {
	return &DailyMetricRepository{db: db}
}

// canonicalArgs returns one nullable column value per canonical key, in
// column order.
func canonicalArgs(values domain.MetricValues) []any {
	keys := domain.CanonicalMetrics()
	args := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := values[k]; ok {
			args[i] = sql.NullFloat64{Float64: v, Valid: true}
		} else {
			args[i] = sql.NullFloat64{}
		}
	}
	return args
}

func (r *DailyMetricRepository) Insert(ctx context.Context, rec *domain.DailyMetricRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	custom, err := marshalJSON(rec.CustomKPIs())
	if err != nil {
		return err
	}

	args := []any{rec.ID, rec.AgencyID, rec.MemberID, domain.FormatDate(rec.WorkDate), rec.RuleVersionID}
	args = append(args, canonicalArgs(rec.Values)...)
	args = append(args, custom, boolInt(rec.CountedDay), boolInt(rec.Late), rec.Hits, rec.Score,
		boolInt(rec.Pass), rec.Streak, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (`+metricColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("daily metric for %s on %s: %w", rec.MemberID, domain.FormatDate(rec.WorkDate), domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert daily metric: %w", err)
	}
	return nil
}

func (r *DailyMetricRepository) Update(ctx context.Context, rec *domain.DailyMetricRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	custom, err := marshalJSON(rec.CustomKPIs())
	if err != nil {
		return err
	}

	args := []any{rec.RuleVersionID}
	args = append(args, canonicalArgs(rec.Values)...)
	args = append(args, custom, boolInt(rec.CountedDay), boolInt(rec.Late), rec.Hits, rec.Score,
		boolInt(rec.Pass), rec.Streak, formatTime(rec.UpdatedAt), rec.ID)

	res, err := r.db.ExecContext(ctx, `
		UPDATE daily_metrics SET
			rule_version_id = ?,
			outbound_calls = ?, talk_minutes = ?, quoted_households = ?, items_sold = ?,
			policies_sold = ?, premium_cents = ?, cross_sells_uncovered = ?, mini_reviews = ?,
			custom_kpis = ?, counted_day = ?, late = ?, hits = ?, score = ?, pass = ?,
			streak = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update daily metric: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("daily metric %s: %w", rec.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *DailyMetricRepository) UpdateStreak(ctx context.Context, id string, streak int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE daily_metrics SET streak = ? WHERE id = ?`, streak, id)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}
	return nil
}

func (r *DailyMetricRepository) Get(ctx context.Context, memberID string, workDate time.Time) (*domain.DailyMetricRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+metricColumns+` FROM daily_metrics WHERE member_id = ? AND work_date = ?
	`, memberID, domain.FormatDate(workDate))
	return nilOnNoRows(scanMetric(row))
}

func (r *DailyMetricRepository) GetByID(ctx context.Context, id string) (*domain.DailyMetricRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+metricColumns+` FROM daily_metrics WHERE id = ?`, id)
	return nilOnNoRows(scanMetric(row))
}

func (r *DailyMetricRepository) ListRange(ctx context.Context, memberID string, from, to time.Time) ([]*domain.DailyMetricRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+metricColumns+` FROM daily_metrics
		WHERE member_id = ? AND work_date >= ? AND work_date <= ?
		ORDER BY work_date
	`, memberID, domain.FormatDate(from), domain.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily metrics: %w", err)
	}
	defer rows.Close()

	var out []*domain.DailyMetricRecord
	for rows.Next() {
		rec, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func nilOnNoRows[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func scanMetric(s scanner) (*domain.DailyMetricRecord, error) {
	var rec domain.DailyMetricRecord
	var workDate, custom, createdAt, updatedAt string
	var counted, late, pass int64
	canonical := make([]sql.NullFloat64, len(domain.CanonicalMetrics()))

	dest := []any{&rec.ID, &rec.AgencyID, &rec.MemberID, &workDate, &rec.RuleVersionID}
	for i := range canonical {
		dest = append(dest, &canonical[i])
	}
	dest = append(dest, &custom, &counted, &late, &rec.Hits, &rec.Score, &pass, &rec.Streak, &createdAt, &updatedAt)

	if err := s.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan daily metric: %w", err)
	}

	d, err := parseDate(workDate)
	if err != nil {
		return nil, err
	}
	rec.WorkDate = d

	rec.Values = make(domain.MetricValues)
	for i, k := range domain.CanonicalMetrics() {
		if canonical[i].Valid {
			rec.Values[k] = canonical[i].Float64
		}
	}
	var kpis map[string]float64
	if err := unmarshalJSON(custom, &kpis); err != nil {
		return nil, err
	}
	for k, v := range kpis {
		rec.Values[domain.MetricKey(k)] = v
	}

	rec.CountedDay = counted == 1
	rec.Late = late == 1
	rec.Pass = pass == 1
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}
