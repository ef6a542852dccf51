package turso

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/emiliopalmerini/salespulse/internal/domain"
	"github.com/emiliopalmerini/salespulse/internal/util"
)

type FactRepository struct {
	db DBTX
}

func NewFactRepository(db DBTX) *FactRepository {
	return &FactRepository{db: db}
}

func (r *FactRepository) InsertQuote(ctx context.Context, f *domain.QuoteFact) (bool, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO quote_facts (
			id, household_id, agency_id, member_id, quote_date, product_type, premium_cents,
			items, provenance, source_ref, skip_metrics_increment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_ref) DO NOTHING
	`, f.ID, f.HouseholdID, f.AgencyID, f.MemberID, domain.FormatDate(f.QuoteDate), f.ProductType,
		f.PremiumCents, f.Items, string(f.Provenance), nullString(f.SourceRef),
		boolInt(f.SkipMetricsIncrement), formatTime(f.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert quote fact: %w", err)
	}
	return inserted(res)
}

func (r *FactRepository) InsertSale(ctx context.Context, f *domain.SaleFact) (bool, error) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sale_facts (
			id, household_id, agency_id, member_id, sale_date, product_type, premium_cents,
			items, policies, provenance, source_ref, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_ref) DO NOTHING
	`, f.ID, f.HouseholdID, f.AgencyID, f.MemberID, domain.FormatDate(f.SaleDate), f.ProductType,
		f.PremiumCents, f.Items, f.Policies, string(f.Provenance), nullString(f.SourceRef),
		formatTime(f.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert sale fact: %w", err)
	}
	return inserted(res)
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *FactRepository) ListQuotes(ctx context.Context, householdID string) ([]*domain.QuoteFact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, household_id, agency_id, member_id, quote_date, product_type, premium_cents,
			items, provenance, source_ref, skip_metrics_increment, created_at
		FROM quote_facts WHERE household_id = ? ORDER BY quote_date, created_at
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quote facts: %w", err)
	}
	defer rows.Close()

	var out []*domain.QuoteFact
	for rows.Next() {
		var f domain.QuoteFact
		var quoteDate, provenance, createdAt string
		var ref sql.NullString
		var skip int64
		if err := rows.Scan(&f.ID, &f.HouseholdID, &f.AgencyID, &f.MemberID, &quoteDate, &f.ProductType,
			&f.PremiumCents, &f.Items, &provenance, &ref, &skip, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan quote fact: %w", err)
		}
		d, err := parseDate(quoteDate)
		if err != nil {
			return nil, err
		}
		f.QuoteDate = d
		f.Provenance = domain.Provenance(provenance)
		f.SourceRef = stringPtr(ref)
		f.SkipMetricsIncrement = skip == 1
		f.CreatedAt = parseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (r *FactRepository) ListSales(ctx context.Context, householdID string) ([]*domain.SaleFact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, household_id, agency_id, member_id, sale_date, product_type, premium_cents,
			items, policies, provenance, source_ref, created_at
		FROM sale_facts WHERE household_id = ? ORDER BY sale_date, created_at
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale facts: %w", err)
	}
	defer rows.Close()

	var out []*domain.SaleFact
	for rows.Next() {
		var f domain.SaleFact
		var saleDate, provenance, createdAt string
		var ref sql.NullString
		if err := rows.Scan(&f.ID, &f.HouseholdID, &f.AgencyID, &f.MemberID, &saleDate, &f.ProductType,
			&f.PremiumCents, &f.Items, &f.Policies, &provenance, &ref, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale fact: %w", err)
		}
		d, err := parseDate(saleDate)
		if err != nil {
			return nil, err
		}
		f.SaleDate = d
		f.Provenance = domain.Provenance(provenance)
		f.SourceRef = stringPtr(ref)
		f.CreatedAt = parseTime(createdAt)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (r *FactRepository) Counts(ctx context.Context, householdID string) (domain.FactCounts, error) {
	var c domain.FactCounts
	var earliestQuote, earliestSale sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM quote_facts WHERE household_id = ?),
			(SELECT MIN(quote_date) FROM quote_facts WHERE household_id = ?),
			(SELECT COUNT(*) FROM sale_facts WHERE household_id = ?),
			(SELECT MIN(sale_date) FROM sale_facts WHERE household_id = ?)
	`, householdID, householdID, householdID, householdID).Scan(&c.Quotes, &earliestQuote, &c.Sales, &earliestSale)
	if err != nil {
		return c, fmt.Errorf("failed to count facts: %w", err)
	}
	c.EarliestQuote = util.NullDateToPtr(earliestQuote)
	c.EarliestSale = util.NullDateToPtr(earliestSale)
	return c, nil
}
